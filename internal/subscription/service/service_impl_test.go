package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/railzwaylabs/tallybook/internal/clock"
	"github.com/railzwaylabs/tallybook/internal/config"
	paymentdomain "github.com/railzwaylabs/tallybook/internal/payment/domain"
	paymentrepo "github.com/railzwaylabs/tallybook/internal/payment/repository"
	paymentservice "github.com/railzwaylabs/tallybook/internal/payment/service"
	"github.com/railzwaylabs/tallybook/internal/subscription/domain"
	"github.com/railzwaylabs/tallybook/internal/subscription/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	svc     domain.Service
	client  domain.Client
	product domain.Product
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Client{}, &domain.Product{}, &domain.Subscription{}, &paymentdomain.Payment{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.Fixed{At: now}
	repo := repository.Provide()
	payments := paymentservice.New(paymentservice.Params{
		DB:               db,
		Log:              zap.NewNop(),
		GenID:            node,
		Config:           config.Config{Billing: config.BillingConfig{DefaultCurrency: "COP"}},
		Clock:            clk,
		Repo:             paymentrepo.Provide(),
		SubscriptionRepo: repo,
	})

	client := domain.Client{
		ID:           node.Generate(),
		BusinessName: "Ferreteria El Tornillo",
		ContactName:  "Luis Gomez",
		Email:        "luis@example.com",
		City:         "Cali",
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, db.Create(&client).Error)

	product := domain.Product{
		ID:               node.Generate(),
		Name:             "Inventario Pro",
		BasePriceMonthly: decimal.NewFromInt(99000),
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, db.Create(&product).Error)

	svc := NewService(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Repo:       repo,
		PaymentSvc: payments,
	})
	return &fixture{db: db, node: node, svc: svc, client: client, product: product}
}

func (f *fixture) payments(t *testing.T, subscriptionID snowflake.ID) []paymentdomain.Payment {
	t.Helper()

	var items []paymentdomain.Payment
	require.NoError(t, f.db.Where("subscription_id = ?", subscriptionID).Find(&items).Error)
	return items
}

func TestCreateSchedulesFirstPendingPayment(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC))

	resp, err := f.svc.Create(context.Background(), domain.CreateRequest{
		ClientID:   f.client.ID.String(),
		ProductID:  f.product.ID.String(),
		BillingDay: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SubscriptionStatusActive, resp.Status)
	assert.True(t, resp.PriceMonthly.Equal(decimal.NewFromInt(99000)))
	assert.Equal(t, "Ferreteria El Tornillo", resp.Client.BusinessName)
	assert.Equal(t, "Inventario Pro", resp.Product.Name)

	items := f.payments(t, resp.ID)
	require.Len(t, items, 1)
	assert.Equal(t, paymentdomain.PaymentStatusPending, items[0].Status)
	assert.True(t, items[0].DueDate.Equal(time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC)))
	assert.True(t, items[0].Amount.Equal(decimal.NewFromInt(99000)))
}

func TestCreateClampsBillingDayForFirstPayment(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))

	price := decimal.NewFromInt(120000)
	startsAt := time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)
	resp, err := f.svc.Create(context.Background(), domain.CreateRequest{
		ClientID:     f.client.ID.String(),
		ProductID:    f.product.ID.String(),
		PriceMonthly: &price,
		BillingDay:   31,
		StartsAt:     &startsAt,
	})
	require.NoError(t, err)
	assert.True(t, resp.PriceMonthly.Equal(price))

	items := f.payments(t, resp.ID)
	require.Len(t, items, 1)
	assert.True(t, items[0].DueDate.Equal(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)))
	assert.True(t, items[0].Amount.Equal(price))
}

func TestCreateCancelledSubscriptionHasNoObligation(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	status := domain.SubscriptionStatusCancelled
	resp, err := f.svc.Create(context.Background(), domain.CreateRequest{
		ClientID:   f.client.ID.String(),
		ProductID:  f.product.ID.String(),
		BillingDay: 5,
		Status:     &status,
	})
	require.NoError(t, err)
	assert.Empty(t, f.payments(t, resp.ID))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	negative := decimal.NewFromInt(-1)
	bogus := domain.SubscriptionStatus("paused")
	startsAt := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	endsAt := startsAt.AddDate(0, 0, -1)

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{"bad client id", domain.CreateRequest{ClientID: "x", ProductID: f.product.ID.String(), BillingDay: 5}, domain.ErrInvalidClient},
		{"bad product id", domain.CreateRequest{ClientID: f.client.ID.String(), ProductID: "", BillingDay: 5}, domain.ErrInvalidProduct},
		{"billing day zero", domain.CreateRequest{ClientID: f.client.ID.String(), ProductID: f.product.ID.String(), BillingDay: 0}, domain.ErrInvalidBillingDay},
		{"billing day 32", domain.CreateRequest{ClientID: f.client.ID.String(), ProductID: f.product.ID.String(), BillingDay: 32}, domain.ErrInvalidBillingDay},
		{"negative price", domain.CreateRequest{ClientID: f.client.ID.String(), ProductID: f.product.ID.String(), BillingDay: 5, PriceMonthly: &negative}, domain.ErrInvalidPrice},
		{"unknown status", domain.CreateRequest{ClientID: f.client.ID.String(), ProductID: f.product.ID.String(), BillingDay: 5, Status: &bogus}, domain.ErrInvalidStatus},
		{"ends before start", domain.CreateRequest{ClientID: f.client.ID.String(), ProductID: f.product.ID.String(), BillingDay: 5, StartsAt: &startsAt, EndsAt: &endsAt}, domain.ErrInvalidPeriod},
		{"unknown client", domain.CreateRequest{ClientID: f.node.Generate().String(), ProductID: f.product.ID.String(), BillingDay: 5}, domain.ErrClientNotFound},
		{"unknown product", domain.CreateRequest{ClientID: f.client.ID.String(), ProductID: f.node.Generate().String(), BillingDay: 5}, domain.ErrProductNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&domain.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		ClientID:   f.client.ID.String(),
		ProductID:  f.product.ID.String(),
		BillingDay: 20,
	})
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, f.client.ID, got.Client.ID)
	assert.Equal(t, f.product.ID, got.Product.ID)

	_, err = f.svc.Get(context.Background(), f.node.Generate().String())
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	_, err = f.svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrInvalidSubscription)

	active, err := f.svc.List(context.Background(), domain.ListRequest{Status: "active"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Ferreteria El Tornillo", active[0].Client.BusinessName)

	expired, err := f.svc.List(context.Background(), domain.ListRequest{Status: "expired"})
	require.NoError(t, err)
	assert.Empty(t, expired)

	_, err = f.svc.List(context.Background(), domain.ListRequest{Status: "paused"})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestUpdateCancelKeepsExistingObligations(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		ClientID:   f.client.ID.String(),
		ProductID:  f.product.ID.String(),
		BillingDay: 5,
	})
	require.NoError(t, err)

	cancelled := domain.SubscriptionStatusCancelled
	day := 12
	price := decimal.RequireFromString("105000.499")
	resp, err := f.svc.Update(context.Background(), domain.UpdateRequest{
		ID:           created.ID.String(),
		Status:       &cancelled,
		BillingDay:   &day,
		PriceMonthly: &price,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, resp.Status)
	assert.Equal(t, 12, resp.BillingDay)
	assert.True(t, resp.PriceMonthly.Equal(decimal.RequireFromString("105000.5")))
	assert.Equal(t, "Inventario Pro", resp.Product.Name)

	stored, err := f.svc.Get(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, stored.Status)
	assert.Equal(t, 12, stored.BillingDay)

	items := f.payments(t, created.ID)
	require.Len(t, items, 1)
	assert.True(t, items[0].DueDate.Equal(time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC)))
	assert.True(t, items[0].Amount.Equal(decimal.NewFromInt(99000)))
}

func TestUpdateReactivationSchedulesNextObligation(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	cancelled := domain.SubscriptionStatusCancelled
	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		ClientID:   f.client.ID.String(),
		ProductID:  f.product.ID.String(),
		BillingDay: 5,
		Status:     &cancelled,
	})
	require.NoError(t, err)
	require.Empty(t, f.payments(t, created.ID))

	active := domain.SubscriptionStatus(" Active ")
	resp, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID.String(), Status: &active})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, resp.Status)

	items := f.payments(t, created.ID)
	require.Len(t, items, 1)
	assert.Equal(t, paymentdomain.PaymentStatusPending, items[0].Status)
	assert.True(t, items[0].DueDate.Equal(time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC)))

	// updating an already billed subscription schedules nothing new
	day := 20
	_, err = f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID.String(), BillingDay: &day})
	require.NoError(t, err)
	assert.Len(t, f.payments(t, created.ID), 1)
}

func TestUpdateEndDate(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		ClientID:   f.client.ID.String(),
		ProductID:  f.product.ID.String(),
		BillingDay: 5,
	})
	require.NoError(t, err)

	endsAt := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
	resp, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID.String(), EndsAt: &endsAt})
	require.NoError(t, err)
	require.NotNil(t, resp.EndsAt)
	assert.True(t, resp.EndsAt.Equal(endsAt))

	resp, err = f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID.String(), ClearEndsAt: true, EndsAt: &endsAt})
	require.NoError(t, err)
	assert.Nil(t, resp.EndsAt)

	before := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID.String(), EndsAt: &before})
	require.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestUpdateValidation(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	expired := domain.SubscriptionStatusExpired
	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		ClientID:   f.client.ID.String(),
		ProductID:  f.product.ID.String(),
		BillingDay: 5,
		Status:     &expired,
	})
	require.NoError(t, err)

	zero := 0
	negative := decimal.NewFromInt(-5)
	cancelled := domain.SubscriptionStatusCancelled
	bogus := domain.SubscriptionStatus("paused")
	cases := []struct {
		name string
		req  domain.UpdateRequest
		want error
	}{
		{"bad id", domain.UpdateRequest{ID: "x"}, domain.ErrInvalidSubscription},
		{"billing day zero", domain.UpdateRequest{ID: created.ID.String(), BillingDay: &zero}, domain.ErrInvalidBillingDay},
		{"negative price", domain.UpdateRequest{ID: created.ID.String(), PriceMonthly: &negative}, domain.ErrInvalidPrice},
		{"unknown status", domain.UpdateRequest{ID: created.ID.String(), Status: &bogus}, domain.ErrInvalidStatus},
		{"expired to cancelled", domain.UpdateRequest{ID: created.ID.String(), Status: &cancelled}, domain.ErrInvalidTransition},
		{"unknown subscription", domain.UpdateRequest{ID: f.node.Generate().String()}, domain.ErrSubscriptionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Update(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}

	stored, err := f.svc.Get(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusExpired, stored.Status)
	assert.Equal(t, 5, stored.BillingDay)
}
