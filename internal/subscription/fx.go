package subscription

import (
	"github.com/railzwaylabs/tallybook/internal/subscription/repository"
	"github.com/railzwaylabs/tallybook/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
