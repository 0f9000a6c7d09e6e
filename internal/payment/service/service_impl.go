package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/tallybook/internal/apperror"
	"github.com/railzwaylabs/tallybook/internal/billingcycle"
	"github.com/railzwaylabs/tallybook/internal/clock"
	"github.com/railzwaylabs/tallybook/internal/config"
	"github.com/railzwaylabs/tallybook/internal/observability"
	"github.com/railzwaylabs/tallybook/internal/payment/domain"
	subscriptiondomain "github.com/railzwaylabs/tallybook/internal/subscription/domain"
	dbpkg "github.com/railzwaylabs/tallybook/pkg/db"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/railzwaylabs/tallybook/internal/payment/service")

const (
	outcomeSettled = "settled"
	outcomeCreated = "created"
	outcomeReplay  = "replayed"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Config           config.Config
	Clock            clock.Clock
	Repo             domain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	Metrics          *observability.Metrics `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             domain.Repository
	subscriptionRepo subscriptiondomain.Repository
	metrics          *observability.Metrics
	defaultCurrency  string
}

func New(p Params) domain.Service {
	currency := strings.ToUpper(strings.TrimSpace(p.Config.Billing.DefaultCurrency))
	if currency == "" {
		currency = "COP"
	}
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("payment.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		metrics:          p.Metrics,
		defaultCurrency:  currency,
	}
}

// RegisterPayment settles the latest open obligation due on or before the
// payment date, or records a standalone paid payment when there is none,
// and then makes sure the following period has a pending payment.
func (s *Service) RegisterPayment(ctx context.Context, req domain.RegisterPaymentRequest) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "payment.RegisterPayment")
	defer span.End()

	subscriptionID, err := parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("subscription_id", subscriptionID.String()))

	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	paidAt := now
	if strings.TrimSpace(req.PaidAt) != "" {
		paidAt, err = parsePaidAt(req.PaidAt)
		if err != nil {
			return nil, err
		}
	}

	currency, err := parseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	receiptURL := trimmedPtr(req.ReceiptURL)
	notes := trimmedPtr(req.Notes)
	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)

	if idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, subscriptionID, idempotencyKey)
		if err != nil {
			return nil, apperror.Store(err, "find payment by idempotency key")
		}
		if existing != nil {
			s.metrics.ObserveRegistration(outcomeReplay)
			return existing, nil
		}
	}

	var (
		settled *domain.Payment
		outcome string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.subscriptionRepo.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return apperror.Store(err, "find subscription")
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		settleAmount := subscription.PriceMonthly
		if amount != nil {
			settleAmount = *amount
		}

		candidate, err := s.repo.FindLatestOpenDueBy(ctx, tx, subscriptionID, billingcycle.StartOfDay(paidAt))
		if err != nil {
			return apperror.Store(err, "find open payment")
		}

		if candidate != nil {
			candidate.Status = domain.PaymentStatusPaid
			candidate.PaidAt = &paidAt
			candidate.Amount = settleAmount
			if currency != "" {
				candidate.Currency = currency
			}
			if receiptURL != nil {
				candidate.ReceiptURL = receiptURL
			}
			if notes != nil {
				candidate.Notes = notes
			}
			if idempotencyKey != "" {
				candidate.IdempotencyKey = &idempotencyKey
			}
			candidate.UpdatedAt = now

			ok, err := s.repo.Settle(ctx, tx, candidate)
			if err != nil {
				return dbpkg.Classify(err, "settle payment")
			}
			if ok {
				settled = candidate
				outcome = outcomeSettled
			}
		}

		if settled == nil {
			due := billingcycle.StartOfDay(paidAt)
			p := &domain.Payment{
				ID:             s.genID.Generate(),
				SubscriptionID: subscriptionID,
				Amount:         settleAmount,
				Currency:       lo.Ternary(currency != "", currency, s.defaultCurrency),
				DueDate:        due,
				Period:         billingcycle.PeriodStart(due),
				PaidAt:         &paidAt,
				Status:         domain.PaymentStatusPaid,
				ReceiptURL:     receiptURL,
				Notes:          notes,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if idempotencyKey != "" {
				p.IdempotencyKey = &idempotencyKey
			}
			if err := s.repo.Insert(ctx, tx, p); err != nil {
				return dbpkg.Classify(err, "insert paid payment")
			}
			settled = p
			outcome = outcomeCreated
		}

		_, err = s.ensureNextPending(ctx, tx, subscription, settled, now)
		return err
	})
	if err != nil {
		if idempotencyKey != "" && dbpkg.IsUniqueViolation(err) {
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, s.db, subscriptionID, idempotencyKey)
			if findErr != nil {
				return nil, apperror.Store(findErr, "find payment by idempotency key")
			}
			if existing != nil {
				s.metrics.ObserveRegistration(outcomeReplay)
				return existing, nil
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.Code(err))
		return nil, err
	}

	s.metrics.ObserveRegistration(outcome)
	s.log.Info("payment registered",
		zap.String("payment_id", settled.ID.String()),
		zap.String("subscription_id", subscriptionID.String()),
		zap.String("outcome", outcome),
		zap.String("amount", settled.Amount.String()),
		zap.Time("due_date", settled.DueDate),
	)
	return settled, nil
}

// ensureNextPending inserts the pending payment for the month after the
// settled one unless that month already holds a payment of any status or
// the subscription is no longer billed by then.
func (s *Service) ensureNextPending(
	ctx context.Context,
	tx *gorm.DB,
	subscription *subscriptiondomain.Subscription,
	settled *domain.Payment,
	now time.Time,
) (*domain.Payment, error) {
	next := billingcycle.AddMonths(billingcycle.PeriodStart(settled.DueDate), 1)
	due := billingcycle.DueDateInMonth(next.Year(), next.Month(), subscription.BillingDay)
	if !subscription.BillableOn(due) {
		s.log.Debug("next pending payment not scheduled",
			zap.String("subscription_id", subscription.ID.String()),
			zap.String("status", string(subscription.Status)),
			zap.Time("due_date", due),
		)
		return nil, nil
	}
	return s.insertPendingInPeriod(ctx, tx, subscription, due, settled.Currency, now)
}

func (s *Service) insertPendingInPeriod(
	ctx context.Context,
	tx *gorm.DB,
	subscription *subscriptiondomain.Subscription,
	due time.Time,
	currency string,
	now time.Time,
) (*domain.Payment, error) {
	period := billingcycle.PeriodStart(due)
	existing, err := s.repo.FindInPeriod(ctx, tx, subscription.ID, period, billingcycle.PeriodEnd(due))
	if err != nil {
		return nil, apperror.Store(err, "find payment in period")
	}
	if existing != nil {
		return nil, nil
	}

	pending := &domain.Payment{
		ID:             s.genID.Generate(),
		SubscriptionID: subscription.ID,
		Amount:         subscription.PriceMonthly,
		Currency:       lo.Ternary(currency != "", currency, s.defaultCurrency),
		DueDate:        due,
		Period:         period,
		Status:         domain.PaymentStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inserted, err := s.repo.InsertPendingIfAbsent(ctx, tx, pending)
	if err != nil {
		return nil, apperror.Store(err, "insert pending payment")
	}
	if !inserted {
		s.log.Debug("pending payment already present",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Time("period", period),
		)
		return nil, nil
	}

	s.metrics.ObservePendingCreated()
	s.log.Info("pending payment created",
		zap.String("payment_id", pending.ID.String()),
		zap.String("subscription_id", subscription.ID.String()),
		zap.Time("due_date", due),
	)
	return pending, nil
}

func (s *Service) EnsurePendingForSubscription(
	ctx context.Context,
	tx *gorm.DB,
	subscription *subscriptiondomain.Subscription,
	reference time.Time,
) (*domain.Payment, error) {
	if subscription == nil || subscription.ID == 0 {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}
	if tx == nil {
		tx = s.db
	}
	due := billingcycle.NextDueDate(reference, subscription.BillingDay)
	if !subscription.BillableOn(due) {
		return nil, nil
	}
	return s.insertPendingInPeriod(ctx, tx, subscription, due, s.defaultCurrency, s.clock.Now(ctx))
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListFilter{}
	if strings.TrimSpace(req.SubscriptionID) != "" {
		id, err := parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
		if err != nil {
			return nil, err
		}
		filter.SubscriptionID = id
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	filter.Status = status

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, apperror.Store(err, "list payments")
	}

	subscriptionIDs := lo.Uniq(lo.Map(items, func(item domain.Payment, _ int) snowflake.ID {
		return item.SubscriptionID
	}))
	summaries, err := s.subscriptionRepo.FindSummaries(ctx, s.db, subscriptionIDs)
	if err != nil {
		return nil, apperror.Store(err, "load subscription summaries")
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(item, summaries))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	paymentID, err := parseID(id, domain.ErrInvalidPaymentID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, apperror.Store(err, "find payment")
	}
	if item == nil {
		return nil, domain.ErrPaymentNotFound
	}

	summaries, err := s.subscriptionRepo.FindSummaries(ctx, s.db, []snowflake.ID{item.SubscriptionID})
	if err != nil {
		return nil, apperror.Store(err, "load subscription summaries")
	}
	resp := toResponse(*item, summaries)
	return &resp, nil
}

// UpdateStatus applies a manual status change. Marking a payment as paid
// stamps paid-at and schedules the next period like a registration does.
func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (*domain.Payment, error) {
	paymentID, err := parseID(req.ID, domain.ErrInvalidPaymentID)
	if err != nil {
		return nil, err
	}
	target, err := domain.ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, domain.ErrInvalidStatus
	}

	now := s.clock.Now(ctx)
	var updated *domain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, paymentID)
		if err != nil {
			return apperror.Store(err, "find payment")
		}
		if item == nil {
			return domain.ErrPaymentNotFound
		}
		if !item.Status.CanTransitionTo(target) {
			return domain.ErrInvalidTransition
		}

		previous := item.Status
		item.Status = target
		switch target {
		case domain.PaymentStatusPaid:
			if item.PaidAt == nil {
				item.PaidAt = &now
			}
		case domain.PaymentStatusPending, domain.PaymentStatusOverdue:
			item.PaidAt = nil
		}
		if receipt := trimmedPtr(req.ReceiptURL); receipt != nil {
			item.ReceiptURL = receipt
		}
		if notes := trimmedPtr(req.Notes); notes != nil {
			item.Notes = notes
		}
		item.UpdatedAt = now

		if err := s.repo.UpdateStatus(ctx, tx, item); err != nil {
			return dbpkg.Classify(err, "update payment status")
		}

		if target == domain.PaymentStatusPaid && previous != domain.PaymentStatusPaid {
			subscription, err := s.subscriptionRepo.FindByID(ctx, tx, item.SubscriptionID)
			if err != nil {
				return apperror.Store(err, "find subscription")
			}
			if subscription != nil {
				if _, err := s.ensureNextPending(ctx, tx, subscription, item, now); err != nil {
					return err
				}
			}
		}

		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment status updated",
		zap.String("payment_id", updated.ID.String()),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	paymentID, err := parseID(id, domain.ErrInvalidPaymentID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, paymentID)
		if err != nil {
			return apperror.Store(err, "find payment")
		}
		if item == nil {
			return domain.ErrPaymentNotFound
		}
		if item.Status == domain.PaymentStatusPaid {
			return domain.ErrPaidPaymentDeletion
		}
		affected, err := s.repo.Delete(ctx, tx, paymentID)
		if err != nil {
			return apperror.Store(err, "delete payment")
		}
		if affected == 0 {
			return domain.ErrPaymentNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.ObserveDeleted(1)
	s.log.Info("payment deleted", zap.String("payment_id", paymentID.String()))
	return nil
}

// BulkDelete removes every listed payment or none of them.
func (s *Service) BulkDelete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, domain.ErrEmptyPaymentIDs
	}

	paymentIDs := make([]snowflake.ID, 0, len(ids))
	for _, raw := range ids {
		id, err := parseID(raw, domain.ErrInvalidPaymentID)
		if err != nil {
			return 0, err
		}
		paymentIDs = append(paymentIDs, id)
	}
	paymentIDs = lo.Uniq(paymentIDs)

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDs(ctx, tx, paymentIDs)
		if err != nil {
			return apperror.Store(err, "find payments")
		}

		byID := lo.KeyBy(found, func(p domain.Payment) snowflake.ID { return p.ID })
		missing := lo.Filter(paymentIDs, func(id snowflake.ID, _ int) bool {
			_, ok := byID[id]
			return !ok
		})
		if len(missing) > 0 {
			return &domain.BulkDeleteError{
				Reason:     domain.ErrPaymentNotFound,
				PaymentIDs: idStrings(missing),
			}
		}

		paid := lo.FilterMap(found, func(p domain.Payment, _ int) (snowflake.ID, bool) {
			return p.ID, p.Status == domain.PaymentStatusPaid
		})
		if len(paid) > 0 {
			return &domain.BulkDeleteError{
				Reason:     domain.ErrPaidPaymentDeletion,
				PaymentIDs: idStrings(paid),
			}
		}

		deleted, err = s.repo.DeleteMany(ctx, tx, paymentIDs)
		if err != nil {
			return apperror.Store(err, "delete payments")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ObserveDeleted(int(deleted))
	s.log.Info("payments deleted", zap.Int64("count", deleted))
	return int(deleted), nil
}

func toResponse(item domain.Payment, summaries map[snowflake.ID]subscriptiondomain.Summary) domain.Response {
	resp := domain.Response{Payment: item}
	if summary, ok := summaries[item.SubscriptionID]; ok {
		resp.Subscription = &summary
	}
	return resp
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id, nil
}

// parseAmount returns nil for an empty amount so callers fall back to the
// subscription price.
func parseAmount(value string) (*decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil || !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	amount = amount.Round(2)
	return &amount, nil
}

func parsePaidAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, domain.ErrInvalidPaidAt
}

func parseCurrency(value string) (string, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return "", nil
	}
	if len(value) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	for _, r := range value {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCurrency
		}
	}
	return value, nil
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

func idStrings(ids []snowflake.ID) []string {
	return lo.Map(ids, func(id snowflake.ID, _ int) string { return id.String() })
}
