package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/tallybook/internal/apperror"
	"github.com/railzwaylabs/tallybook/internal/billingcycle"
	"github.com/railzwaylabs/tallybook/internal/clock"
	paymentdomain "github.com/railzwaylabs/tallybook/internal/payment/domain"
	subscriptiondomain "github.com/railzwaylabs/tallybook/internal/subscription/domain"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	repo       subscriptiondomain.Repository
	paymentSvc paymentdomain.Service
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository

	PaymentSvc paymentdomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		paymentSvc: p.PaymentSvc,
	}
}

// Create stores the subscription and schedules its first pending payment
// on the first billing day on or after the start date.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (*subscriptiondomain.Response, error) {
	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID <= 0 {
		return nil, subscriptiondomain.ErrInvalidClient
	}
	productID, err := snowflake.ParseString(strings.TrimSpace(req.ProductID))
	if err != nil || productID <= 0 {
		return nil, subscriptiondomain.ErrInvalidProduct
	}
	if !billingcycle.ValidBillingDay(req.BillingDay) {
		return nil, subscriptiondomain.ErrInvalidBillingDay
	}
	if req.PriceMonthly != nil && req.PriceMonthly.IsNegative() {
		return nil, subscriptiondomain.ErrInvalidPrice
	}

	status := subscriptiondomain.SubscriptionStatusActive
	if req.Status != nil {
		status = subscriptiondomain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(string(*req.Status))))
		if !status.Valid() {
			return nil, subscriptiondomain.ErrInvalidStatus
		}
	}

	now := s.clock.Now(ctx)
	startsAt := now
	if req.StartsAt != nil {
		startsAt = req.StartsAt.UTC()
	}
	var endsAt *time.Time
	if req.EndsAt != nil {
		value := req.EndsAt.UTC()
		if value.Before(startsAt) {
			return nil, subscriptiondomain.ErrInvalidPeriod
		}
		endsAt = &value
	}

	var (
		sub     *subscriptiondomain.Subscription
		client  *subscriptiondomain.Client
		product *subscriptiondomain.Product
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err = s.repo.FindClientByID(ctx, tx, clientID)
		if err != nil {
			return apperror.Store(err, "find client")
		}
		if client == nil {
			return subscriptiondomain.ErrClientNotFound
		}

		product, err = s.repo.FindProductByID(ctx, tx, productID)
		if err != nil {
			return apperror.Store(err, "find product")
		}
		if product == nil {
			return subscriptiondomain.ErrProductNotFound
		}

		price := product.BasePriceMonthly
		if req.PriceMonthly != nil {
			price = req.PriceMonthly.Round(2)
		}

		sub = &subscriptiondomain.Subscription{
			ID:            s.genID.Generate(),
			ClientID:      clientID,
			ProductID:     productID,
			PriceMonthly:  price,
			BillingDay:    req.BillingDay,
			Status:        status,
			StartsAt:      startsAt,
			EndsAt:        endsAt,
			PaymentMethod: trimmedPtr(req.PaymentMethod),
			InstanceURL:   trimmedPtr(req.InstanceURL),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return apperror.Store(err, "insert subscription")
		}

		_, err := s.paymentSvc.EnsurePendingForSubscription(ctx, tx, sub, startsAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("client_id", clientID.String()),
		zap.Int("billing_day", sub.BillingDay),
	)

	return &subscriptiondomain.Response{
		Subscription: *sub,
		Client:       clientSummary(client),
		Product:      productSummary(product),
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*subscriptiondomain.Response, error) {
	subscriptionID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || subscriptionID <= 0 {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}

	item, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return nil, apperror.Store(err, "find subscription")
	}
	if item == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	summaries, err := s.repo.FindSummaries(ctx, s.db, []snowflake.ID{item.ID})
	if err != nil {
		return nil, apperror.Store(err, "load subscription summaries")
	}
	resp := toResponse(*item, summaries)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListRequest) ([]subscriptiondomain.Response, error) {
	filter := subscriptiondomain.ListRequest{Status: strings.ToLower(strings.TrimSpace(req.Status))}
	if filter.Status != "" && !subscriptiondomain.SubscriptionStatus(filter.Status).Valid() {
		return nil, subscriptiondomain.ErrInvalidStatus
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, apperror.Store(err, "list subscriptions")
	}

	ids := lo.Map(items, func(item subscriptiondomain.Subscription, _ int) snowflake.ID { return item.ID })
	summaries, err := s.repo.FindSummaries(ctx, s.db, ids)
	if err != nil {
		return nil, apperror.Store(err, "load subscription summaries")
	}

	resp := make([]subscriptiondomain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(item, summaries))
	}
	return resp, nil
}

// Update changes the set fields of a subscription. A status change must be
// an allowed transition, and moving back into a billed status schedules the
// next obligation. Existing payments keep their dates and amounts.
func (s *Service) Update(ctx context.Context, req subscriptiondomain.UpdateRequest) (*subscriptiondomain.Response, error) {
	subscriptionID, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || subscriptionID <= 0 {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}
	if req.BillingDay != nil && !billingcycle.ValidBillingDay(*req.BillingDay) {
		return nil, subscriptiondomain.ErrInvalidBillingDay
	}
	if req.PriceMonthly != nil && req.PriceMonthly.IsNegative() {
		return nil, subscriptiondomain.ErrInvalidPrice
	}
	var target *subscriptiondomain.SubscriptionStatus
	if req.Status != nil {
		status := subscriptiondomain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(string(*req.Status))))
		if !status.Valid() {
			return nil, subscriptiondomain.ErrInvalidStatus
		}
		target = &status
	}

	now := s.clock.Now(ctx)
	var (
		sub      *subscriptiondomain.Subscription
		previous subscriptiondomain.SubscriptionStatus
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err = s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return apperror.Store(err, "find subscription")
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		previous = sub.Status
		if target != nil && *target != sub.Status {
			if !sub.Status.CanTransitionTo(*target) {
				return subscriptiondomain.ErrInvalidTransition
			}
			sub.Status = *target
		}
		if req.PriceMonthly != nil {
			sub.PriceMonthly = req.PriceMonthly.Round(2)
		}
		if req.BillingDay != nil {
			sub.BillingDay = *req.BillingDay
		}
		if req.StartsAt != nil {
			sub.StartsAt = req.StartsAt.UTC()
		}
		switch {
		case req.ClearEndsAt:
			sub.EndsAt = nil
		case req.EndsAt != nil:
			endsAt := req.EndsAt.UTC()
			sub.EndsAt = &endsAt
		}
		if sub.EndsAt != nil && sub.EndsAt.Before(sub.StartsAt) {
			return subscriptiondomain.ErrInvalidPeriod
		}
		if req.PaymentMethod != nil {
			sub.PaymentMethod = trimmedPtr(req.PaymentMethod)
		}
		if req.InstanceURL != nil {
			sub.InstanceURL = trimmedPtr(req.InstanceURL)
		}
		sub.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return apperror.Store(err, "update subscription")
		}

		if previous.Billable() || !sub.Status.Billable() {
			return nil
		}
		reference := lo.Ternary(sub.StartsAt.After(now), sub.StartsAt, now)
		_, err := s.paymentSvc.EnsurePendingForSubscription(ctx, tx, sub, reference)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription updated",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("from_status", string(previous)),
		zap.String("status", string(sub.Status)),
		zap.Int("billing_day", sub.BillingDay),
	)

	summaries, err := s.repo.FindSummaries(ctx, s.db, []snowflake.ID{sub.ID})
	if err != nil {
		return nil, apperror.Store(err, "load subscription summaries")
	}
	resp := toResponse(*sub, summaries)
	return &resp, nil
}

func toResponse(item subscriptiondomain.Subscription, summaries map[snowflake.ID]subscriptiondomain.Summary) subscriptiondomain.Response {
	resp := subscriptiondomain.Response{Subscription: item}
	if summary, ok := summaries[item.ID]; ok {
		resp.Client = summary.Client
		resp.Product = summary.Product
	}
	return resp
}

func clientSummary(c *subscriptiondomain.Client) subscriptiondomain.ClientSummary {
	if c == nil {
		return subscriptiondomain.ClientSummary{}
	}
	return subscriptiondomain.ClientSummary{
		ID:           c.ID,
		BusinessName: c.BusinessName,
		ContactName:  c.ContactName,
		Email:        c.Email,
		Phone:        c.Phone,
		City:         c.City,
		Status:       c.Status,
	}
}

func productSummary(p *subscriptiondomain.Product) subscriptiondomain.ProductSummary {
	if p == nil {
		return subscriptiondomain.ProductSummary{}
	}
	return subscriptiondomain.ProductSummary{
		ID:               p.ID,
		Name:             p.Name,
		Description:      p.Description,
		BasePriceMonthly: p.BasePriceMonthly,
	}
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
