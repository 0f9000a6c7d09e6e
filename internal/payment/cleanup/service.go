// Package cleanup collapses duplicate payments of a subscription month and
// corrects statuses that drifted from the payment data.
package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/tallybook/internal/apperror"
	"github.com/railzwaylabs/tallybook/internal/billingcycle"
	"github.com/railzwaylabs/tallybook/internal/clock"
	"github.com/railzwaylabs/tallybook/internal/config"
	"github.com/railzwaylabs/tallybook/internal/lock"
	"github.com/railzwaylabs/tallybook/internal/observability"
	"github.com/railzwaylabs/tallybook/internal/payment/domain"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const lockName = "payment-cleanup"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Config  config.Config
	Clock   clock.Clock
	Repo    domain.Repository
	Locker  lock.Locker
	Metrics *observability.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	locker  lock.Locker
	lockTTL time.Duration
	metrics *observability.Metrics
}

func New(p Params) *Service {
	ttl := p.Config.Cleanup.LockTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	locker := p.Locker
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("payment.cleanup"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		locker:  locker,
		lockTTL: ttl,
		metrics: p.Metrics,
	}
}

// Run performs one cleanup pass. Only one pass runs at a time across every
// instance sharing the lock backend.
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	lease, err := s.locker.Acquire(ctx, lockName, s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, domain.ErrCleanupInProgress
		}
		return nil, apperror.Store(err, "acquire cleanup lock")
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("release cleanup lock failed", zap.Error(err))
		}
	}()

	started := s.clock.Now(ctx)
	today := billingcycle.StartOfDay(started)
	log := s.log.With(zap.Bool("dry_run", opts.DryRun), zap.Time("as_of", today))
	log.Info("payment cleanup started")

	orphans, err := s.repo.CountOrphans(ctx, s.db)
	if err != nil {
		return nil, apperror.Store(err, "count orphan payments")
	}
	if orphans > 0 {
		log.Warn("payments without subscription skipped", zap.Int64("count", orphans))
	}

	items, err := s.repo.ListForCleanup(ctx, s.db)
	if err != nil {
		return nil, apperror.Store(err, "list payments for cleanup")
	}

	actions := plan(items, today)
	result := &Result{DryRun: opts.DryRun, OrphanCount: orphans}

	for i := range actions {
		action := &actions[i]
		if opts.DryRun {
			log.Info("cleanup planned", actionFields(action)...)
			s.count(result, action)
			continue
		}

		applied, err := s.apply(ctx, action, started)
		switch {
		case err != nil:
			action.Error = err.Error()
			result.FailedCount++
			log.Error("cleanup action failed", append(actionFields(action), zap.Error(err))...)
		case !applied:
			action.Skipped = true
			log.Info("cleanup action skipped, payment changed concurrently", actionFields(action)...)
		default:
			s.count(result, action)
			log.Info("cleanup action applied", actionFields(action)...)
		}
	}
	result.Actions = actions

	finished := s.clock.Now(ctx)
	if !opts.DryRun {
		run, err := s.record(ctx, result, started, finished)
		if err != nil {
			return nil, err
		}
		result.RunID = run.ID
		s.metrics.ObserveCleanup(result.DeletedCount, result.UpdatedCount, result.FailedCount, finished.Sub(started).Seconds())
	}

	log.Info("payment cleanup finished",
		zap.Int("deleted", result.DeletedCount),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("failed", result.FailedCount),
	)
	return result, nil
}

func (s *Service) count(result *Result, action *Action) {
	switch action.Type {
	case ActionDelete:
		result.DeletedCount++
	case ActionReclassify:
		result.UpdatedCount++
	}
}

func (s *Service) apply(ctx context.Context, action *Action, at time.Time) (bool, error) {
	switch action.Type {
	case ActionDelete:
		affected, err := s.repo.DeleteIfStatus(ctx, s.db, action.PaymentID, action.From)
		return affected > 0, err
	case ActionReclassify:
		return s.repo.Reclassify(ctx, s.db, action.PaymentID, action.From, action.To, at)
	default:
		return false, nil
	}
}

func (s *Service) record(ctx context.Context, result *Result, started, finished time.Time) (*Run, error) {
	raw, err := json.Marshal(result.Actions)
	if err != nil {
		return nil, err
	}
	run := &Run{
		ID:           s.genID.Generate(),
		StartedAt:    started,
		FinishedAt:   finished,
		DryRun:       result.DryRun,
		DeletedCount: result.DeletedCount,
		UpdatedCount: result.UpdatedCount,
		FailedCount:  result.FailedCount,
		OrphanCount:  result.OrphanCount,
		Actions:      datatypes.JSON(raw),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, apperror.Store(err, "record cleanup run")
	}
	return run, nil
}

// plan decides every change for items, which must belong to existing
// subscriptions. Deletions come first, then status corrections of the
// surviving records.
func plan(items []domain.Payment, today time.Time) []Action {
	var (
		deletions   []Action
		corrections []Action
	)

	bySubscription := lo.GroupBy(items, func(p domain.Payment) snowflake.ID { return p.SubscriptionID })
	subscriptionIDs := lo.Keys(bySubscription)
	slices.Sort(subscriptionIDs)

	for _, subscriptionID := range subscriptionIDs {
		byMonth := lo.GroupBy(bySubscription[subscriptionID], func(p domain.Payment) time.Time {
			return billingcycle.PeriodStart(p.DueDate)
		})
		months := lo.Keys(byMonth)
		slices.SortFunc(months, func(a, b time.Time) int { return a.Compare(b) })

		for _, month := range months {
			group := byMonth[month]
			keeper := chooseKeeper(group)

			for _, p := range group {
				if p.ID == keeper.ID {
					continue
				}
				deletions = append(deletions, Action{
					Type:           ActionDelete,
					PaymentID:      p.ID,
					SubscriptionID: subscriptionID,
					Period:         month,
					KeptID:         keeper.ID,
					From:           p.Status,
				})
			}

			if to, ok := correctedStatus(keeper, today); ok {
				corrections = append(corrections, Action{
					Type:           ActionReclassify,
					PaymentID:      keeper.ID,
					SubscriptionID: subscriptionID,
					Period:         month,
					From:           keeper.Status,
					To:             to,
				})
			}
		}
	}

	return append(deletions, corrections...)
}

// chooseKeeper prefers the earliest created paid record, falling back to
// the earliest created record of the group.
func chooseKeeper(group []domain.Payment) domain.Payment {
	candidates := lo.Filter(group, func(p domain.Payment, _ int) bool {
		return p.Status == domain.PaymentStatusPaid
	})
	if len(candidates) == 0 {
		candidates = group
	}
	return lo.MinBy(candidates, func(a, b domain.Payment) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func correctedStatus(p domain.Payment, today time.Time) (domain.PaymentStatus, bool) {
	switch {
	case p.PaidAt != nil && p.Status != domain.PaymentStatusPaid:
		return domain.PaymentStatusPaid, true
	case p.PaidAt == nil && p.Status == domain.PaymentStatusPending && billingcycle.StartOfDay(p.DueDate).Before(today):
		return domain.PaymentStatusOverdue, true
	default:
		return "", false
	}
}

func actionFields(a *Action) []zap.Field {
	fields := []zap.Field{
		zap.String("action", string(a.Type)),
		zap.String("payment_id", a.PaymentID.String()),
		zap.String("subscription_id", a.SubscriptionID.String()),
		zap.Time("period", a.Period),
	}
	if a.KeptID != 0 {
		fields = append(fields, zap.String("kept_id", a.KeptID.String()))
	}
	if a.To != "" {
		fields = append(fields, zap.String("from", string(a.From)), zap.String("to", string(a.To)))
	}
	return fields
}
