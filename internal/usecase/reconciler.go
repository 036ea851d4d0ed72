// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modeshift/modeshift/internal/domain"
)

// Reconciler diffs running applications against a mode's effective allow
// set and converges toward it: apps outside the set are asked to close,
// apps missing from it are launched.
//
// One reconciliation runs as a single sequential flow: all closes complete
// before the first launch, and launches go one at a time so per-app failure
// attribution stays simple. Callers must not run two reconciliations
// concurrently.
type Reconciler struct {
	store      domain.ConfigStore
	controller domain.AppController
	dock       domain.DockSyncer
	history    domain.SwitchHistory
	logger     *zap.Logger

	mu      sync.Mutex
	current string // id of the last applied mode, in-memory only
}

// NewReconciler creates a reconciler. dock and history may be nil; Dock
// synchronization and history recording are then skipped.
func NewReconciler(
	store domain.ConfigStore,
	controller domain.AppController,
	dock domain.DockSyncer,
	history domain.SwitchHistory,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		store:      store,
		controller: controller,
		dock:       dock,
		history:    history,
		logger:     logger,
	}
}

// Switch reconciles the system toward the mode with the given id.
//
// Per-app close and launch failures never abort the run; they are captured
// in the returned outcome. An error is returned only when the mode is
// unknown or the running-app query itself fails.
func (r *Reconciler) Switch(ctx context.Context, modeID string) (*domain.Outcome, error) {
	cfg := r.store.Config()
	mode := cfg.ModeByID(modeID)
	if mode == nil {
		return nil, fmt.Errorf("unknown mode %q", modeID)
	}
	return r.reconcile(ctx, *mode, cfg)
}

// Reapply re-runs the current mode. It is a no-op error when no mode has
// been applied yet in this process.
func (r *Reconciler) Reapply(ctx context.Context) (*domain.Outcome, error) {
	r.mu.Lock()
	current := r.current
	r.mu.Unlock()

	if current == "" {
		return nil, fmt.Errorf("no mode applied yet")
	}
	return r.Switch(ctx, current)
}

// CurrentModeID returns the id of the last applied mode, or "" if none.
func (r *Reconciler) CurrentModeID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Reconciler) reconcile(ctx context.Context, mode domain.Mode, cfg domain.Config) (*domain.Outcome, error) {
	start := time.Now()

	running, err := r.controller.ListRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list running apps: %w", err)
	}

	allow := domain.NewAllowSet(cfg.GlobalAllowList, mode.Apps)

	outcome := &domain.Outcome{
		ModeID:         mode.ID,
		ModeName:       mode.Name,
		Closed:         make([]domain.AppIdentity, 0),
		Skipped:        make([]domain.SkippedApp, 0),
		Kept:           make([]domain.AppIdentity, 0),
		Opened:         make([]domain.AppIdentity, 0),
		AlreadyRunning: make([]domain.AppIdentity, 0),
		FailedToOpen:   make([]domain.FailedApp, 0),
		ExecutedAt:     start,
	}

	// Close pass: every running app outside the allow set. All closes
	// complete before any launch is issued.
	runningKeys := make(map[string]struct{}, len(running))
	for _, app := range running {
		runningKeys[app.Key()] = struct{}{}

		if allow.Contains(app) {
			outcome.Kept = append(outcome.Kept, app)
			continue
		}

		status, reason := r.controller.RequestClose(ctx, app, cfg.ForceCloseApps)
		switch status {
		case domain.CloseDone, domain.CloseNotRunning:
			// Gone by the time we asked counts as closed.
			r.logger.Info("closed app",
				zap.String("mode", mode.Name),
				zap.String("bundle_id", app.BundleID))
			outcome.Closed = append(outcome.Closed, app)
		case domain.CloseSkipped:
			r.logger.Info("app declined to close",
				zap.String("bundle_id", app.BundleID),
				zap.String("reason", reason))
			outcome.Skipped = append(outcome.Skipped, domain.SkippedApp{App: app, Reason: reason})
		case domain.CloseFailed:
			// A failed close leaves the app open; the user can correct
			// it. It does not mark the switch unsuccessful.
			r.logger.Warn("failed to close app",
				zap.String("bundle_id", app.BundleID),
				zap.String("reason", reason))
			outcome.Skipped = append(outcome.Skipped, domain.SkippedApp{App: app, Reason: reason})
		}
	}

	// Launch pass: mode apps first, then global allow-list apps, each
	// attempted at most once per bundle id, strictly sequentially.
	attempted := make(map[string]struct{}, allow.Len())
	launchList := make([]domain.AppIdentity, 0, allow.Len())
	launchList = append(launchList, mode.Apps...)
	launchList = append(launchList, cfg.GlobalAllowList...)

	for _, app := range launchList {
		key := app.Key()
		if key == "" {
			continue
		}
		if _, done := attempted[key]; done {
			continue
		}
		attempted[key] = struct{}{}

		if _, up := runningKeys[key]; up {
			outcome.AlreadyRunning = append(outcome.AlreadyRunning, app)
			continue
		}

		status, reason := r.controller.RequestLaunch(ctx, app)
		switch status {
		case domain.LaunchDone:
			r.logger.Info("launched app",
				zap.String("mode", mode.Name),
				zap.String("bundle_id", app.BundleID))
			outcome.Opened = append(outcome.Opened, app)
		case domain.LaunchAlreadyRunning:
			outcome.AlreadyRunning = append(outcome.AlreadyRunning, app)
		case domain.LaunchFailed:
			r.logger.Warn("failed to launch app",
				zap.String("bundle_id", app.BundleID),
				zap.String("reason", reason))
			outcome.FailedToOpen = append(outcome.FailedToOpen, domain.FailedApp{App: app, Reason: reason})
		}
	}

	// Dock sync is opt-in per mode. A sync failure leaves the previous
	// Dock document in place and is reported, not fatal.
	if mode.ManageDock && r.dock != nil {
		if err := r.dock.SetApps(allow.Apps()); err != nil {
			r.logger.Warn("dock sync failed", zap.Error(err))
		} else {
			outcome.DockSynced = true
		}
	}

	r.mu.Lock()
	r.current = mode.ID
	r.mu.Unlock()

	outcome.DurationMs = time.Since(start).Milliseconds()

	if r.history != nil {
		rec := domain.SwitchRecord{
			ModeID:     mode.ID,
			ModeName:   mode.Name,
			ClosedApps: len(outcome.Closed),
			OpenedApps: len(outcome.Opened),
			Skipped:    len(outcome.Skipped),
			Failed:     len(outcome.FailedToOpen),
			Success:    outcome.Success(),
			SwitchedAt: start,
		}
		if err := r.history.Record(rec); err != nil {
			r.logger.Warn("failed to record switch history", zap.Error(err))
		}
	}

	return outcome, nil
}
