package catalog

import (
	"go.uber.org/fx"

	reporestaurant "github.com/chopdirect/chopdirect/internal/repository/restaurant"
)

// Module provides the catalog service to Fx.
var Module = fx.Options(
	fx.Provide(
		func(r *reporestaurant.Repository) Repository { return r },
		NewService,
	),
)
