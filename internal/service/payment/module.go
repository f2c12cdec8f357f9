package payment

import (
	"go.uber.org/fx"

	repoorder "github.com/chopdirect/chopdirect/internal/repository/order"
	repopayment "github.com/chopdirect/chopdirect/internal/repository/payment"
)

// Module provides the payment service to Fx.
var Module = fx.Options(
	fx.Provide(
		func(r *repopayment.Repository) Ledger { return r },
		func(r *repoorder.Repository) Orders { return r },
		NewService,
	),
)
