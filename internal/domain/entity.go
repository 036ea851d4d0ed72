// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"strings"
	"time"
)

// AppIdentity identifies an installed application.
// BundleID is the stable key; Name is informational only.
type AppIdentity struct {
	BundleID string `json:"bundleId"`
	Name     string `json:"name"`
}

// Key returns the canonical comparison key for the identity.
// Bundle identifiers are compared case-insensitively across the whole system.
func (a AppIdentity) Key() string {
	return strings.ToLower(a.BundleID)
}

// Shortcut describes a global keyboard shortcut bound to a mode or action.
// Carried for the configuration round-trip; the core never interprets it.
type Shortcut struct {
	KeyCode   int    `json:"keyCode"`
	Modifiers uint64 `json:"modifiers"`
}

// Mode is a named, user-authored desired set of applications.
// Layout and ProjectPath are placeholders persisted for forward
// compatibility; nothing in this module reads them.
type Mode struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Icon        string        `json:"icon"`
	Shortcut    *Shortcut     `json:"shortcut,omitempty"`
	Apps        []AppIdentity `json:"apps"`
	ManageDock  bool          `json:"manageDock"`
	Layout      string        `json:"layout,omitempty"`
	ProjectPath string        `json:"projectPath,omitempty"`
}

// SwitcherKeyBinding selects the hotkey scheme for the mode switcher UI.
type SwitcherKeyBinding string

const (
	SwitcherBindingNone   SwitcherKeyBinding = "none"
	SwitcherBindingOption SwitcherKeyBinding = "option"
	SwitcherBindingCustom SwitcherKeyBinding = "custom"
)

// Config is the root persisted aggregate. It is loaded once at start and
// mutated only through the configuration store, which replaces the whole
// value on every mutation.
type Config struct {
	Version                int                `json:"version"`
	GlobalAllowList        []AppIdentity      `json:"globalAllowList"`
	Modes                  []Mode             `json:"modes"`
	ForceCloseApps         bool               `json:"forceCloseApps"`
	EnableAutoReapply      bool               `json:"enableAutoReapply"`
	AutoReapplyIntervalSec int                `json:"autoReapplyInterval"`
	SwitcherKeyBinding     SwitcherKeyBinding `json:"switcherKeyBinding"`
	SwitcherShortcut       *Shortcut          `json:"switcherShortcut,omitempty"`
	ReapplyShortcut        *Shortcut          `json:"reapplyShortcut,omitempty"`
}

// ModeByID returns the mode with the given id, or nil if absent.
func (c *Config) ModeByID(id string) *Mode {
	for i := range c.Modes {
		if c.Modes[i].ID == id {
			return &c.Modes[i]
		}
	}
	return nil
}

// AutoReapplyInterval returns the reapply interval as a duration,
// falling back to one minute when the stored value is unset.
func (c *Config) AutoReapplyInterval() time.Duration {
	if c.AutoReapplyIntervalSec <= 0 {
		return time.Minute
	}
	return time.Duration(c.AutoReapplyIntervalSec) * time.Second
}

// Clone returns a deep copy of the aggregate. Mutations build on a clone
// so snapshots already handed out never change underneath their holders.
func (c Config) Clone() Config {
	out := c
	out.GlobalAllowList = cloneApps(c.GlobalAllowList)
	if c.Modes != nil {
		out.Modes = make([]Mode, len(c.Modes))
		for i := range c.Modes {
			out.Modes[i] = c.Modes[i].clone()
		}
	}
	out.SwitcherShortcut = c.SwitcherShortcut.clone()
	out.ReapplyShortcut = c.ReapplyShortcut.clone()
	return out
}

func (m Mode) clone() Mode {
	out := m
	out.Apps = cloneApps(m.Apps)
	out.Shortcut = m.Shortcut.clone()
	return out
}

func (s *Shortcut) clone() *Shortcut {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

func cloneApps(in []AppIdentity) []AppIdentity {
	if in == nil {
		return nil
	}
	out := make([]AppIdentity, len(in))
	copy(out, in)
	return out
}

// AllowSet is the effective set of applications a mode keeps open:
// the global allow list plus the mode's own apps, deduplicated by
// case-insensitive bundle identifier.
type AllowSet struct {
	keys    map[string]struct{}
	ordered []AppIdentity
}

// NewAllowSet builds the effective allow set for a mode. Global allow-list
// apps come first in the stable ordering, then the mode's apps, so Dock
// synchronization sees a predictable order.
func NewAllowSet(global []AppIdentity, mode []AppIdentity) *AllowSet {
	s := &AllowSet{keys: make(map[string]struct{}, len(global)+len(mode))}
	for _, app := range global {
		s.add(app)
	}
	for _, app := range mode {
		s.add(app)
	}
	return s
}

func (s *AllowSet) add(app AppIdentity) {
	key := app.Key()
	if key == "" {
		return
	}
	if _, ok := s.keys[key]; ok {
		return
	}
	s.keys[key] = struct{}{}
	s.ordered = append(s.ordered, app)
}

// Contains reports whether the app is in the allow set.
func (s *AllowSet) Contains(app AppIdentity) bool {
	_, ok := s.keys[app.Key()]
	return ok
}

// Apps returns the allow set in stable order (global first, then mode).
func (s *AllowSet) Apps() []AppIdentity {
	return s.ordered
}

// Len returns the number of distinct apps in the set.
func (s *AllowSet) Len() int {
	return len(s.ordered)
}

// CloseStatus classifies the result of a close request.
type CloseStatus string

const (
	CloseDone       CloseStatus = "closed"
	CloseSkipped    CloseStatus = "skipped"
	CloseNotRunning CloseStatus = "not_running"
	CloseFailed     CloseStatus = "failed"
)

// LaunchStatus classifies the result of a launch request.
type LaunchStatus string

const (
	LaunchDone           LaunchStatus = "launched"
	LaunchAlreadyRunning LaunchStatus = "already_running"
	LaunchFailed         LaunchStatus = "failed"
)

// SkippedApp is an app that declined to close, with the reason.
type SkippedApp struct {
	App    AppIdentity
	Reason string
}

// FailedApp is an app whose launch failed, with the error text.
type FailedApp struct {
	App    AppIdentity
	Reason string
}

// Outcome reports what one reconciliation did. It is never persisted;
// it exists only so the caller can display the result.
//
// Closed, Skipped and Kept strictly partition the running-app input:
// no app is counted twice and none is dropped.
type Outcome struct {
	ModeID         string
	ModeName       string
	Closed         []AppIdentity
	Skipped        []SkippedApp
	Kept           []AppIdentity
	Opened         []AppIdentity
	AlreadyRunning []AppIdentity
	FailedToOpen   []FailedApp
	DockSynced     bool
	ExecutedAt     time.Time
	DurationMs     int64
}

// Success reports whether the reconciliation converged to the desired
// open set. Skipped closes are tolerated; failed launches are not.
func (o *Outcome) Success() bool {
	return len(o.FailedToOpen) == 0
}

// SwitchRecord is one row of mode-switch history.
type SwitchRecord struct {
	ModeID     string
	ModeName   string
	ClosedApps int
	OpenedApps int
	Skipped    int
	Failed     int
	Success    bool
	SwitchedAt time.Time
}
