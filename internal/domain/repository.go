package domain

import "context"

// AppController handles OS application operations.
// Implementation: gopsutil for listing, open/osascript for launch and quit.
type AppController interface {
	// ListRunning returns currently running, user-facing applications,
	// excluding this process and background-only agents.
	ListRunning(ctx context.Context) ([]AppIdentity, error)

	// RequestClose asks the app to quit. With force set, the app is
	// terminated without being given a chance to decline. A skipped
	// result means the app refused to close (e.g. unsaved work).
	RequestClose(ctx context.Context, app AppIdentity, force bool) (CloseStatus, string)

	// RequestLaunch starts the app and waits for the OS to confirm
	// success or failure.
	RequestLaunch(ctx context.Context, app AppIdentity) (LaunchStatus, string)
}

// AppResolver maps a bundle identifier to the installed application's
// on-disk location.
type AppResolver interface {
	// Resolve returns the .app path for the bundle id, or an error
	// when no installed application matches.
	Resolve(bundleID string) (string, error)
}

// DockSyncer mirrors an ordered app set into the Dock's pinned-apps
// document. Callers must serialize invocations; concurrent SetApps
// calls are not supported.
type DockSyncer interface {
	// SetApps replaces the pinned-apps list wholesale with one entry
	// per resolvable app, in the given order, then restarts the Dock.
	// Unresolvable apps are skipped with a warning, not an error.
	// On read or write failure the previous document is left untouched
	// and no restart happens.
	SetApps(apps []AppIdentity) error

	// Snapshot returns the current raw Dock document bytes, for use
	// with Restore.
	Snapshot() ([]byte, error)

	// Restore writes back an exact prior document snapshot and
	// restarts the Dock.
	Restore(prev []byte) error
}

// ConfigStore owns the root configuration aggregate.
//
// Every mutation atomically replaces the in-memory snapshot, synchronously
// notifies subscribers, and schedules a debounced durable write. Mutations
// assume a single logical caller thread; each individual disk write is
// atomic, but the store does not lock across concurrent mutation calls.
type ConfigStore interface {
	// Config returns the current snapshot. Callers must not mutate it.
	Config() Config

	// AddMode appends a mode.
	AddMode(mode Mode) error

	// UpdateMode replaces the mode with the same id.
	UpdateMode(mode Mode) error

	// DeleteMode removes the mode with the given id.
	DeleteMode(id string) error

	// ReorderModes replaces the mode order with the given id sequence.
	ReorderModes(ids []string) error

	// SetGlobalAllowList replaces the global allow list.
	SetGlobalAllowList(apps []AppIdentity) error

	// SetBehavior updates the behavior flags in one mutation.
	SetBehavior(forceClose, autoReapply bool, reapplyIntervalSec int) error

	// Subscribe registers a callback invoked synchronously after every
	// mutation with the new snapshot.
	Subscribe(fn func(Config))

	// Flush forces any pending debounced write to disk immediately.
	Flush() error
}

// SwitchHistory records mode switches for the status and history views.
type SwitchHistory interface {
	// Record appends one switch record.
	Record(rec SwitchRecord) error

	// Recent returns up to limit records, newest first.
	Recent(limit int) ([]SwitchRecord, error)

	// Close releases the underlying database connection.
	Close() error
}
