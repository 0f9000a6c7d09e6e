package app

import (
	"testing"

	"github.com/railzwaylabs/tallybook/internal/payment/cleanup"
	"github.com/railzwaylabs/tallybook/internal/seed"
	"github.com/railzwaylabs/tallybook/internal/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestGraphsResolve(t *testing.T) {
	require.NoError(t, fx.ValidateApp(Billing, API, Scheduler))
	require.NoError(t, fx.ValidateApp(Billing, seed.Module, fx.Invoke(func(*seed.Seeder, *cleanup.Service, *server.Server) {})))
}
