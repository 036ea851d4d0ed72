package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modeshift/modeshift/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStoreWithPath(path, zap.NewNop())
	s.SetDebounce(20 * time.Millisecond)
	return s
}

// TestLoad_FirstRunCreatesDefaults verifies defaults are created and
// persisted when no document exists, and a second load returns them
func TestLoad_FirstRunCreatesDefaults(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Load())

	cfg := s.Config()
	assert.Equal(t, CurrentSchemaVersion, cfg.Version)
	assert.Len(t, cfg.Modes, 3)
	assert.NotEmpty(t, cfg.GlobalAllowList)

	// The defaults were persisted immediately.
	_, err := os.Stat(s.Path())
	require.NoError(t, err)

	// A fresh store over the same path loads identical values.
	s2 := NewStoreWithPath(s.Path(), zap.NewNop())
	require.NoError(t, s2.Load())
	assert.Equal(t, cfg, s2.Config())
}

// TestRoundTrip verifies load(save(config)) == config
func TestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load())

	mode := domain.Mode{
		ID:       "writing",
		Name:     "Writing",
		Icon:     "pencil",
		Shortcut: &domain.Shortcut{KeyCode: 13, Modifiers: 1 << 20},
		Apps: []domain.AppIdentity{
			{BundleID: "com.literatureandlatte.scrivener3", Name: "Scrivener"},
		},
		ManageDock:  true,
		ProjectPath: "~/Documents/novel",
	}
	require.NoError(t, s.AddMode(mode))
	require.NoError(t, s.SetBehavior(true, true, 120))
	require.NoError(t, s.Flush())

	s2 := NewStoreWithPath(s.Path(), zap.NewNop())
	require.NoError(t, s2.Load())
	assert.Equal(t, s.Config(), s2.Config())

	reloaded := s2.Config()
	loaded := reloaded.ModeByID("writing")
	require.NotNil(t, loaded)
	assert.Equal(t, mode, *loaded)
}

// TestLoad_CorruptPrimaryRecoversBackup verifies backup recovery and
// re-persistence as the new primary
func TestLoad_CorruptPrimaryRecoversBackup(t *testing.T) {
	s := newTestStore(t)

	good := DefaultConfig()
	good.Modes[0].Name = "FromBackup"
	data, err := json.Marshal(good)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0700))
	require.NoError(t, os.WriteFile(s.BackupPath(), data, 0600))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0600))

	require.NoError(t, s.Load())

	assert.Equal(t, "FromBackup", s.Config().Modes[0].Name)

	// The recovered content overwrote the corrupted primary.
	primary, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var reloaded domain.Config
	require.NoError(t, json.Unmarshal(primary, &reloaded))
	assert.Equal(t, "FromBackup", reloaded.Modes[0].Name)
}

// TestLoad_BothCorruptFallsBackToDefaults verifies the store never fails
// to end in a usable state
func TestLoad_BothCorruptFallsBackToDefaults(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("garbage"), 0600))
	require.NoError(t, os.WriteFile(s.BackupPath(), []byte("also garbage"), 0600))

	require.NoError(t, s.Load())

	assert.Len(t, s.Config().Modes, 3)
	assert.Equal(t, CurrentSchemaVersion, s.Config().Version)
}

// TestDebounce_CoalescesWrites verifies a burst of mutations produces one
// write reflecting only the final state
func TestDebounce_CoalescesWrites(t *testing.T) {
	s := newTestStore(t)
	s.SetDebounce(60 * time.Millisecond)
	require.NoError(t, s.Load())

	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	require.NoError(t, s.AddMode(domain.Mode{ID: "a", Name: "A"}))
	require.NoError(t, s.AddMode(domain.Mode{ID: "b", Name: "B"}))
	require.NoError(t, s.AddMode(domain.Mode{ID: "c", Name: "C"}))

	// Inside the window the document is untouched.
	during, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, during)

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(s.Path())
		if err != nil {
			return false
		}
		var cfg domain.Config
		if json.Unmarshal(data, &cfg) != nil {
			return false
		}
		return cfg.ModeByID("c") != nil
	}, time.Second, 10*time.Millisecond)

	// The single write reflects all three mutations.
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var cfg domain.Config
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.NotNil(t, cfg.ModeByID("a"))
	assert.NotNil(t, cfg.ModeByID("b"))
	assert.NotNil(t, cfg.ModeByID("c"))
}

// TestFlush_BypassesDebounce verifies Flush gives an immediate durability
// guarantee
func TestFlush_BypassesDebounce(t *testing.T) {
	s := newTestStore(t)
	s.SetDebounce(time.Hour)
	require.NoError(t, s.Load())

	require.NoError(t, s.AddMode(domain.Mode{ID: "urgent", Name: "Urgent"}))
	require.NoError(t, s.Flush())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var cfg domain.Config
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.NotNil(t, cfg.ModeByID("urgent"))
}

// TestSave_WritesBackupOfPreviousState verifies the backup document holds
// the previously written snapshot
func TestSave_WritesBackupOfPreviousState(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load())

	require.NoError(t, s.AddMode(domain.Mode{ID: "next", Name: "Next"}))
	require.NoError(t, s.Flush())

	backup, err := os.ReadFile(s.BackupPath())
	require.NoError(t, err)
	var prev domain.Config
	require.NoError(t, json.Unmarshal(backup, &prev))
	// The backup is the pre-mutation document.
	assert.Nil(t, prev.ModeByID("next"))
	assert.Len(t, prev.Modes, 3)
}

// TestMutations covers add/update/delete/reorder validation
func TestMutations(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load())
	require.NoError(t, s.DeleteMode(s.Config().Modes[0].ID))
	require.NoError(t, s.DeleteMode(s.Config().Modes[0].ID))
	require.NoError(t, s.DeleteMode(s.Config().Modes[0].ID))

	require.NoError(t, s.AddMode(domain.Mode{ID: "m1", Name: "One"}))
	require.NoError(t, s.AddMode(domain.Mode{ID: "m2", Name: "Two"}))

	assert.Error(t, s.AddMode(domain.Mode{ID: "m1", Name: "Dup"}))
	assert.Error(t, s.UpdateMode(domain.Mode{ID: "nope"}))
	assert.Error(t, s.DeleteMode("nope"))
	assert.Error(t, s.ReorderModes([]string{"m1"}))
	assert.Error(t, s.ReorderModes([]string{"m1", "nope"}))
	assert.Error(t, s.ReorderModes([]string{"m1", "m1"}))

	require.NoError(t, s.UpdateMode(domain.Mode{ID: "m2", Name: "Renamed"}))
	require.NoError(t, s.ReorderModes([]string{"m2", "m1"}))

	cfg := s.Config()
	assert.Equal(t, "m2", cfg.Modes[0].ID)
	assert.Equal(t, "Renamed", cfg.Modes[0].Name)
	assert.Equal(t, "m1", cfg.Modes[1].ID)
}

// TestReorderModes_DuplicateIDKeepsModes verifies a duplicated id leaves
// the mode list untouched instead of dropping the mode it displaced
func TestReorderModes_DuplicateIDKeepsModes(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load())
	for len(s.Config().Modes) > 0 {
		require.NoError(t, s.DeleteMode(s.Config().Modes[0].ID))
	}
	require.NoError(t, s.AddMode(domain.Mode{ID: "m1", Name: "One"}))
	require.NoError(t, s.AddMode(domain.Mode{ID: "m2", Name: "Two"}))

	require.Error(t, s.ReorderModes([]string{"m1", "m1"}))

	cfg := s.Config()
	require.Len(t, cfg.Modes, 2)
	assert.NotNil(t, cfg.ModeByID("m1"))
	assert.NotNil(t, cfg.ModeByID("m2"))
}

// TestConfig_SnapshotsStayStable verifies mutations never write into a
// snapshot handed out earlier
func TestConfig_SnapshotsStayStable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load())

	snap := s.Config()
	original := snap.Modes[0].Name
	originalApps := len(snap.Modes[0].Apps)

	renamed := snap.Modes[0]
	renamed.Name = "Renamed"
	renamed.Apps = nil
	require.NoError(t, s.UpdateMode(renamed))

	assert.Equal(t, original, snap.Modes[0].Name)
	assert.Len(t, snap.Modes[0].Apps, originalApps)

	// Deleting must not shift elements inside the old snapshot either.
	require.NoError(t, s.DeleteMode(snap.Modes[0].ID))
	assert.Equal(t, original, snap.Modes[0].Name)
	assert.Len(t, snap.Modes, 3)
}

// TestSubscribe_NotifiedSynchronously verifies subscribers see each new
// snapshot before the mutation call returns
func TestSubscribe_NotifiedSynchronously(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load())

	var seen []int
	s.Subscribe(func(cfg domain.Config) {
		seen = append(seen, len(cfg.Modes))
	})

	require.NoError(t, s.AddMode(domain.Mode{ID: "x", Name: "X"}))
	require.NoError(t, s.AddMode(domain.Mode{ID: "y", Name: "Y"}))

	assert.Equal(t, []int{4, 5}, seen)
}
