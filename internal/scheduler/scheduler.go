// Package scheduler runs the periodic payment cleanup.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/railzwaylabs/tallybook/internal/config"
	"github.com/railzwaylabs/tallybook/internal/payment/cleanup"
	paymentdomain "github.com/railzwaylabs/tallybook/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
)

type cleanupRunner interface {
	Run(ctx context.Context, opts cleanup.Options) (*cleanup.Result, error)
}

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Cleanup *cleanup.Service
}

type Scheduler struct {
	log      *zap.Logger
	enabled  bool
	interval time.Duration
	cleanup  cleanupRunner
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:      p.Log.Named("scheduler"),
		enabled:  p.Config.Cleanup.Enabled,
		interval: p.Config.Cleanup.Interval,
		cleanup:  p.Cleanup,
	}
}

// RunForever runs a cleanup pass immediately and then on every interval
// until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	if !s.enabled || s.interval <= 0 {
		s.log.Info("periodic cleanup disabled")
		return
	}

	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.CleanupJob(ctx); err != nil {
			s.log.Error("scheduler job failed", zap.String("job", "payment_cleanup"), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// CleanupJob runs one cleanup pass. A pass already running elsewhere is not
// an error.
func (s *Scheduler) CleanupJob(ctx context.Context) error {
	start := time.Now()
	s.log.Info("job started", zap.String("job", "payment_cleanup"))

	result, err := s.cleanup.Run(ctx, cleanup.Options{})
	if errors.Is(err, paymentdomain.ErrCleanupInProgress) {
		s.log.Info("job skipped, another cleanup is running", zap.String("job", "payment_cleanup"))
		return nil
	}
	if err != nil {
		return err
	}

	s.log.Info("job finished",
		zap.String("job", "payment_cleanup"),
		zap.Int("deleted", result.DeletedCount),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("failed", result.FailedCount),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Start runs the scheduler in the background for the lifetime of the app.
func Start(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
