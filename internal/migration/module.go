package migration

import "go.uber.org/fx"

// Module provides the migrator to the Fx graph.
var Module = fx.Provide(New)
