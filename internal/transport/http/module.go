package http

import (
	"go.uber.org/fx"

	catalogtransport "github.com/chopdirect/chopdirect/internal/transport/http/catalog"
	ordertransport "github.com/chopdirect/chopdirect/internal/transport/http/order"
	paymenttransport "github.com/chopdirect/chopdirect/internal/transport/http/payment"
	webhooktransport "github.com/chopdirect/chopdirect/internal/transport/http/webhook"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	catalogtransport.Module,
	ordertransport.Module,
	paymenttransport.Module,
	webhooktransport.Module,
)
