// Package middleware carries cross-cutting Echo middleware for the HTTP
// transport. Authentication itself lives at the edge; requests arrive with
// gateway-asserted identity headers.
package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/chopdirect/chopdirect/internal/presentation/http/response"
	"github.com/chopdirect/chopdirect/pkg/errorbank"
)

const (
	headerUserID    = "X-User-ID"
	headerUserEmail = "X-User-Email"

	ctxKeyUserID    = "identity.user_id"
	ctxKeyUserEmail = "identity.user_email"
)

// RequireUser rejects requests that carry no asserted user identity and
// stores the identity on the request context for handlers downstream.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get(headerUserID)
			if userID == "" {
				return response.New(c).WithError(errorbank.Unauthorized("authentication required")).Build()
			}
			c.Set(ctxKeyUserID, userID)
			c.Set(ctxKeyUserEmail, c.Request().Header.Get(headerUserEmail))
			return next(c)
		}
	}
}

// UserID returns the authenticated user id set by RequireUser.
func UserID(c echo.Context) string {
	id, _ := c.Get(ctxKeyUserID).(string)
	return id
}

// UserEmail returns the authenticated user email, if asserted.
func UserEmail(c echo.Context) string {
	email, _ := c.Get(ctxKeyUserEmail).(string)
	return email
}
