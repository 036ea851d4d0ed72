package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modeshift/modeshift/internal/domain"
)

const (
	configFileName = "config.json"
	backupSuffix   = ".backup"

	// DefaultDebounce is the write-coalescing window. A burst of
	// mutations inside this window produces exactly one disk write.
	DefaultDebounce = 300 * time.Millisecond
)

// Store owns the root configuration aggregate.
//
// Mutations replace the in-memory snapshot atomically, notify subscribers
// synchronously, and schedule a debounced durable write. Each individual
// disk write is atomic (temp file + rename), but callers are responsible
// for serializing mutation calls; the store does not lock across
// concurrent mutations.
type Store struct {
	path       string
	backupPath string
	debounce   time.Duration
	coalescer  *Coalescer
	logger     *zap.Logger

	mu          sync.RWMutex
	cfg         domain.Config
	subscribers []func(domain.Config)
}

// NewStore creates a store at the default per-user location.
func NewStore(logger *zap.Logger) *Store {
	home, _ := os.UserHomeDir()
	dir := filepath.Join(home, "Library", "Application Support", "modeshift")
	return NewStoreWithPath(filepath.Join(dir, configFileName), logger)
}

// NewStoreWithPath creates a store backed by a specific document path
// (for testing). The backup document lives at path + ".backup".
func NewStoreWithPath(path string, logger *zap.Logger) *Store {
	return &Store{
		path:       path,
		backupPath: path + backupSuffix,
		debounce:   DefaultDebounce,
		coalescer:  NewCoalescer(),
		logger:     logger,
	}
}

// SetDebounce overrides the write-coalescing window (for testing).
func (s *Store) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Path returns the primary document path.
func (s *Store) Path() string {
	return s.path
}

// BackupPath returns the backup document path.
func (s *Store) BackupPath() string {
	return s.backupPath
}

// Load initializes the in-memory snapshot from disk.
//
// A missing primary document yields the default configuration, persisted
// immediately. An unparsable primary falls back to the backup document;
// if that also fails, defaults are used. Recovery from the backup
// immediately re-persists it as the new primary, so the system always
// ends in a loadable state.
func (s *Store) Load() error {
	cfg, recovered, err := s.loadFromDisk()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	if recovered {
		if err := s.saveNow(); err != nil {
			return fmt.Errorf("failed to persist recovered config: %w", err)
		}
	}
	return nil
}

// loadFromDisk returns the config and whether it must be re-persisted.
func (s *Store) loadFromDisk() (domain.Config, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return domain.Config{}, false, fmt.Errorf("failed to read config: %w", err)
		}
		// First run: start from defaults and persist them.
		s.logger.Info("no configuration found, creating defaults",
			zap.String("path", s.path))
		return DefaultConfig(), true, nil
	}

	var cfg domain.Config
	if err := json.Unmarshal(data, &cfg); err == nil {
		return cfg, false, nil
	}

	s.logger.Warn("primary config unparsable, trying backup",
		zap.String("path", s.path))

	backupData, backupErr := os.ReadFile(s.backupPath)
	if backupErr == nil {
		if err := json.Unmarshal(backupData, &cfg); err == nil {
			s.logger.Info("recovered configuration from backup",
				zap.String("path", s.backupPath))
			return cfg, true, nil
		}
	}

	s.logger.Warn("backup config also unusable, falling back to defaults")
	return DefaultConfig(), true, nil
}

// Config returns the current snapshot.
func (s *Store) Config() domain.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Subscribe registers a callback invoked synchronously after every mutation.
func (s *Store) Subscribe(fn func(domain.Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// AddMode appends a mode.
func (s *Store) AddMode(mode domain.Mode) error {
	return s.mutate(func(cfg *domain.Config) error {
		if cfg.ModeByID(mode.ID) != nil {
			return fmt.Errorf("mode %q already exists", mode.ID)
		}
		cfg.Modes = append(cfg.Modes, mode)
		return nil
	})
}

// UpdateMode replaces the mode with the same id.
func (s *Store) UpdateMode(mode domain.Mode) error {
	return s.mutate(func(cfg *domain.Config) error {
		for i := range cfg.Modes {
			if cfg.Modes[i].ID == mode.ID {
				cfg.Modes[i] = mode
				return nil
			}
		}
		return fmt.Errorf("unknown mode %q", mode.ID)
	})
}

// DeleteMode removes the mode with the given id.
func (s *Store) DeleteMode(id string) error {
	return s.mutate(func(cfg *domain.Config) error {
		for i := range cfg.Modes {
			if cfg.Modes[i].ID == id {
				cfg.Modes = append(cfg.Modes[:i], cfg.Modes[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("unknown mode %q", id)
	})
}

// ReorderModes replaces the mode order with the given id sequence. Every
// existing mode id must appear exactly once.
func (s *Store) ReorderModes(ids []string) error {
	return s.mutate(func(cfg *domain.Config) error {
		if len(ids) != len(cfg.Modes) {
			return fmt.Errorf("reorder needs %d ids, got %d", len(cfg.Modes), len(ids))
		}
		seen := make(map[string]struct{}, len(ids))
		reordered := make([]domain.Mode, 0, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("duplicate mode id %q", id)
			}
			seen[id] = struct{}{}
			mode := cfg.ModeByID(id)
			if mode == nil {
				return fmt.Errorf("unknown mode %q", id)
			}
			reordered = append(reordered, *mode)
		}
		cfg.Modes = reordered
		return nil
	})
}

// SetGlobalAllowList replaces the global allow list.
func (s *Store) SetGlobalAllowList(apps []domain.AppIdentity) error {
	return s.mutate(func(cfg *domain.Config) error {
		cfg.GlobalAllowList = apps
		return nil
	})
}

// SetBehavior updates the behavior flags in one mutation.
func (s *Store) SetBehavior(forceClose, autoReapply bool, reapplyIntervalSec int) error {
	return s.mutate(func(cfg *domain.Config) error {
		cfg.ForceCloseApps = forceClose
		cfg.EnableAutoReapply = autoReapply
		cfg.AutoReapplyIntervalSec = reapplyIntervalSec
		return nil
	})
}

// mutate applies fn to a deep copy of the snapshot, swaps it in, notifies
// subscribers, and schedules a debounced write. The deep copy keeps
// previously returned snapshots stable: fn never writes into slice
// backing arrays shared with them.
func (s *Store) mutate(fn func(*domain.Config) error) error {
	s.mu.Lock()
	next := s.cfg.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg = next
	subs := make([]func(domain.Config), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}

	s.coalescer.Schedule(s.debounce, func() {
		if err := s.saveNow(); err != nil {
			s.logger.Error("debounced config save failed", zap.Error(err))
		}
	})
	return nil
}

// Flush writes the current snapshot to disk immediately, bypassing the
// debounce window. Use before destructive transitions that need a
// durability guarantee.
func (s *Store) Flush() error {
	s.coalescer.Stop()
	return s.saveNow()
}

// saveNow persists the snapshot: backs up the current primary bytes
// (best-effort), then writes the full document atomically so it is never
// observably partial.
func (s *Store) saveNow() error {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	if prev, err := os.ReadFile(s.path); err == nil {
		if err := os.WriteFile(s.backupPath, prev, 0600); err != nil {
			// A failed backup never aborts the save.
			s.logger.Warn("failed to write config backup", zap.Error(err))
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return atomicWrite(s.path, data)
}

// atomicWrite writes data to path via a temp file and rename.
func atomicWrite(path string, data []byte) error {
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure Store implements domain.ConfigStore.
var _ domain.ConfigStore = (*Store)(nil)
