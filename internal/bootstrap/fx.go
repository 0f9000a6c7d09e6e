package bootstrap

import "go.uber.org/fx"

// Module provides the schema gate. Serving processes add
// fx.Invoke(EnforceSchemaGate) to refuse to start on a stale schema.
var Module = fx.Module("bootstrap",
	fx.Provide(NewSchemaGate),
)
