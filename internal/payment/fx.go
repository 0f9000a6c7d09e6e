package payment

import (
	"github.com/railzwaylabs/tallybook/internal/payment/cleanup"
	"github.com/railzwaylabs/tallybook/internal/payment/repository"
	paymentservice "github.com/railzwaylabs/tallybook/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.New),
	fx.Provide(cleanup.New),
)
