package momo

import (
	"go.uber.org/fx"

	"github.com/chopdirect/chopdirect/internal/provider"
)

// Module provides the MoMo gateway to the Fx gateway group.
var Module = fx.Provide(fx.Annotate(
	func(g *Gateway) provider.Gateway { return g },
	fx.ResultTags(`group:"payment.gateways"`),
), New)
