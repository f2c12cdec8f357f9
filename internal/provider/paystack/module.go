package paystack

import (
	"go.uber.org/fx"

	"github.com/chopdirect/chopdirect/internal/provider"
)

// Module provides the Paystack gateway to Fx, both as the concrete type for
// webhook signature verification and as a member of the gateway group.
var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(fx.Annotate(
		func(g *Gateway) provider.Gateway { return g },
		fx.ResultTags(`group:"payment.gateways"`),
	)),
)
