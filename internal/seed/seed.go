// Package seed loads a small demo dataset for local environments.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/tallybook/internal/clock"
	subscriptiondomain "github.com/railzwaylabs/tallybook/internal/subscription/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Provide(New),
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
}

type Seeder struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	subscriptions subscriptiondomain.Service
}

func New(p Params) *Seeder {
	return &Seeder{
		db:            p.DB,
		log:           p.Log.Named("seed"),
		genID:         p.GenID,
		clock:         p.Clock,
		subscriptions: p.SubscriptionSvc,
	}
}

type productSeed struct {
	name        string
	description string
	price       int64
}

var products = []productSeed{
	{"Wabot", "Automated appointment scheduling with multiple user roles", 99000},
	{"Registrador de Ventas", "Inventory and sales tracking for small shops", 119000},
}

var demoClient = subscriptiondomain.Client{
	BusinessName: "Farmacia La Esperanza",
	ContactName:  "Maria Gonzalez",
	Email:        "farmacia@example.com",
	Phone:        "3124567890",
	City:         "Medellin",
	Department:   "Antioquia",
	Status:       "active",
}

// Run inserts the demo products and client, then subscribes the client to
// the first product. Records that already exist are left alone.
func (s *Seeder) Run(ctx context.Context) error {
	now := s.clock.Now(ctx).UTC()

	var productIDs []snowflake.ID
	for _, seed := range products {
		id, err := s.ensureProduct(ctx, seed, now)
		if err != nil {
			return err
		}
		productIDs = append(productIDs, id)
	}

	clientID, created, err := s.ensureClient(ctx, now)
	if err != nil {
		return err
	}
	if !created {
		s.log.Info("demo data already present")
		return nil
	}

	sub, err := s.subscriptions.Create(ctx, subscriptiondomain.CreateRequest{
		ClientID:   clientID.String(),
		ProductID:  productIDs[0].String(),
		BillingDay: 5,
	})
	if err != nil {
		return fmt.Errorf("seed subscription: %w", err)
	}

	s.log.Info("demo data created",
		zap.Int("products", len(productIDs)),
		zap.String("client_id", clientID.String()),
		zap.String("subscription_id", sub.ID.String()),
	)
	return nil
}

func (s *Seeder) ensureProduct(ctx context.Context, seed productSeed, now time.Time) (snowflake.ID, error) {
	var existing subscriptiondomain.Product
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM products WHERE name = ? LIMIT 1`, seed.name,
	).Scan(&existing).Error; err != nil {
		return 0, fmt.Errorf("seed product %s: %w", seed.name, err)
	}
	if existing.ID != 0 {
		return existing.ID, nil
	}

	description := seed.description
	product := subscriptiondomain.Product{
		ID:               s.genID.Generate(),
		Name:             seed.name,
		Description:      &description,
		BasePriceMonthly: decimal.NewFromInt(seed.price),
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		return 0, fmt.Errorf("seed product %s: %w", seed.name, err)
	}
	return product.ID, nil
}

func (s *Seeder) ensureClient(ctx context.Context, now time.Time) (snowflake.ID, bool, error) {
	var existing subscriptiondomain.Client
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM clients WHERE business_name = ? LIMIT 1`, demoClient.BusinessName,
	).Scan(&existing).Error; err != nil {
		return 0, false, fmt.Errorf("seed client: %w", err)
	}
	if existing.ID != 0 {
		return existing.ID, false, nil
	}

	client := demoClient
	client.ID = s.genID.Generate()
	client.CreatedAt = now
	client.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&client).Error; err != nil {
		return 0, false, fmt.Errorf("seed client: %w", err)
	}
	return client.ID, true, nil
}
