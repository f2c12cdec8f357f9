package order

import (
	"go.uber.org/fx"

	repoorder "github.com/chopdirect/chopdirect/internal/repository/order"
	reporestaurant "github.com/chopdirect/chopdirect/internal/repository/restaurant"
)

// Module provides the order service and its repository bindings to Fx.
var Module = fx.Options(
	fx.Provide(
		func(r *repoorder.Repository) Repository { return r },
		func(r *reporestaurant.Repository) Catalog { return r },
		NewService,
	),
)
