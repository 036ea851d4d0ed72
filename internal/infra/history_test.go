package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modeshift/modeshift/internal/domain"
)

func newTestHistory(t *testing.T) *SwitchHistoryDB {
	t.Helper()
	dir := t.TempDir()
	key, err := NewFileKeyProvider(dir).EnsureKey()
	require.NoError(t, err)

	h, err := NewSwitchHistory(dir, key)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// TestHistory_RecordAndRecent verifies records come back newest first
func TestHistory_RecordAndRecent(t *testing.T) {
	h := newTestHistory(t)

	now := time.Now().Truncate(time.Second)
	require.NoError(t, h.Record(domain.SwitchRecord{
		ModeID: "dev", ModeName: "Dev",
		ClosedApps: 2, OpenedApps: 1, Success: true, SwitchedAt: now,
	}))
	require.NoError(t, h.Record(domain.SwitchRecord{
		ModeID: "break", ModeName: "Break",
		Skipped: 1, Failed: 1, Success: false, SwitchedAt: now.Add(time.Minute),
	}))

	records, err := h.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "break", records[0].ModeID)
	assert.False(t, records[0].Success)
	assert.Equal(t, 1, records[0].Failed)

	assert.Equal(t, "dev", records[1].ModeID)
	assert.True(t, records[1].Success)
	assert.Equal(t, 2, records[1].ClosedApps)
	assert.Equal(t, now.Unix(), records[1].SwitchedAt.Unix())
}

// TestHistory_RecentLimit verifies the limit is honored
func TestHistory_RecentLimit(t *testing.T) {
	h := newTestHistory(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Record(domain.SwitchRecord{
			ModeID: "dev", ModeName: "Dev", Success: true, SwitchedAt: time.Now(),
		}))
	}

	records, err := h.Recent(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

// TestHistory_Empty verifies Recent on a fresh database
func TestHistory_Empty(t *testing.T) {
	h := newTestHistory(t)

	records, err := h.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestHistory_WrongKeyFails verifies the database is actually encrypted
func TestHistory_WrongKeyFails(t *testing.T) {
	dir := t.TempDir()
	key, err := NewFileKeyProvider(dir).EnsureKey()
	require.NoError(t, err)

	h, err := NewSwitchHistory(dir, key)
	require.NoError(t, err)
	require.NoError(t, h.Record(domain.SwitchRecord{
		ModeID: "dev", ModeName: "Dev", Success: true, SwitchedAt: time.Now(),
	}))
	require.NoError(t, h.Close())

	wrongKey := make([]byte, keySize)
	_, err = NewSwitchHistory(dir, wrongKey)
	assert.Error(t, err)
}
