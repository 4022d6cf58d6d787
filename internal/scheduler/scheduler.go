// Package scheduler periodically drains PENDING business events through the
// posting engine, one pass per tenant per tick.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/farmbooks/farmbooks/internal/clock"
	postingdomain "github.com/farmbooks/farmbooks/internal/posting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log        *zap.Logger
	PostingSvc postingdomain.Service
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	postingSvc postingdomain.Service
	clock      clock.Clock
	cfg        Config
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.PostingSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		postingSvc: p.PostingSvc,
		clock:      p.Clock,
		cfg:        p.Config.withDefaults(),
	}, nil
}

// RunOnce drains every tenant with PENDING events. A tenant whose drain
// fails does not stop the others; the joined error is returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	tenants, err := s.postingSvc.TenantsWithPending(ctx)
	if err != nil {
		return err
	}

	var runErr error
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return errors.Join(runErr, ctx.Err())
		}

		result, err := s.postingSvc.ProcessPendingEvents(ctx, tenantID, s.cfg.BatchSize)
		if err != nil {
			runErr = errors.Join(runErr, err)
			s.log.Warn("tenant drain failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		if result.Processed > 0 || result.Failed > 0 {
			s.log.Info("tenant drained",
				zap.String("tenant_id", tenantID.String()),
				zap.Int("posted", result.Posted),
				zap.Int("failed", result.Failed),
				zap.Int("skipped", result.Skipped),
			)
		}
	}
	return runErr
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
