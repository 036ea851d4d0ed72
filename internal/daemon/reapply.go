// Package daemon implements the background auto-reapply loop.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/modeshift/modeshift/internal/domain"
)

// Reconciler is the slice of the reconciliation engine the loop needs.
type Reconciler interface {
	Reapply(ctx context.Context) (*domain.Outcome, error)
	CurrentModeID() string
}

// Reapplier periodically re-runs the current mode so apps opened outside
// the mode get closed again. It follows the enableAutoReapply flag and
// interval from the configuration store, picking up changes live.
type Reapplier struct {
	store      domain.ConfigStore
	reconciler Reconciler
	logger     *zap.Logger
	cfgCh      chan domain.Config
}

// NewReapplier creates the loop and subscribes it to configuration
// changes.
func NewReapplier(store domain.ConfigStore, reconciler Reconciler, logger *zap.Logger) *Reapplier {
	r := &Reapplier{
		store:      store,
		reconciler: reconciler,
		logger:     logger,
		cfgCh:      make(chan domain.Config, 1),
	}
	store.Subscribe(func(cfg domain.Config) {
		// Keep only the latest snapshot; the loop drains at its own pace.
		select {
		case r.cfgCh <- cfg:
		default:
			select {
			case <-r.cfgCh:
			default:
			}
			r.cfgCh <- cfg
		}
	})
	return r
}

// Run blocks until the context is canceled.
func (r *Reapplier) Run(ctx context.Context) error {
	cfg := r.store.Config()
	ticker := time.NewTicker(cfg.AutoReapplyInterval())
	defer ticker.Stop()

	r.logger.Info("auto-reapply loop started",
		zap.Bool("enabled", cfg.EnableAutoReapply),
		zap.Duration("interval", cfg.AutoReapplyInterval()))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("auto-reapply loop stopping")
			return ctx.Err()

		case next := <-r.cfgCh:
			if next.AutoReapplyInterval() != cfg.AutoReapplyInterval() {
				ticker.Reset(next.AutoReapplyInterval())
			}
			if next.EnableAutoReapply != cfg.EnableAutoReapply {
				r.logger.Info("auto-reapply toggled",
					zap.Bool("enabled", next.EnableAutoReapply))
			}
			cfg = next

		case <-ticker.C:
			if !cfg.EnableAutoReapply {
				continue
			}
			r.reapply(ctx)
		}
	}
}

func (r *Reapplier) reapply(ctx context.Context) {
	if r.reconciler.CurrentModeID() == "" {
		return
	}

	outcome, err := r.reconciler.Reapply(ctx)
	if err != nil {
		r.logger.Error("auto-reapply failed", zap.Error(err))
		return
	}

	if len(outcome.Closed) > 0 || len(outcome.Opened) > 0 {
		r.logger.Info("auto-reapply converged",
			zap.String("mode", outcome.ModeName),
			zap.Int("closed", len(outcome.Closed)),
			zap.Int("opened", len(outcome.Opened)))
	}
}
