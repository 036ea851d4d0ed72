package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/modeshift/modeshift/internal/domain"
)

const historyDBName = "history.db"

// SwitchHistoryDB implements domain.SwitchHistory using a SQLCipher
// encrypted SQLite database.
type SwitchHistoryDB struct {
	db     *sql.DB
	dbPath string
}

// NewSwitchHistory opens (or creates) the encrypted history database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewSwitchHistory(dataDir string, key []byte) (*SwitchHistoryDB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, historyDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	h := &SwitchHistoryDB{db: db, dbPath: dbPath}
	if err := h.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return h, nil
}

// createTables creates the schema if it doesn't exist.
func (h *SwitchHistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS switches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mode_id TEXT NOT NULL,
		mode_name TEXT NOT NULL,
		closed_apps INTEGER NOT NULL,
		opened_apps INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		success INTEGER NOT NULL,
		switched_at INTEGER NOT NULL
	);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Record appends one switch record.
func (h *SwitchHistoryDB) Record(rec domain.SwitchRecord) error {
	success := 0
	if rec.Success {
		success = 1
	}
	_, err := h.db.Exec(`
		INSERT INTO switches (mode_id, mode_name, closed_apps, opened_apps, skipped, failed, success, switched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ModeID, rec.ModeName, rec.ClosedApps, rec.OpenedApps,
		rec.Skipped, rec.Failed, success, rec.SwitchedAt.Unix(),
	)
	return err
}

// Recent returns up to limit records, newest first.
func (h *SwitchHistoryDB) Recent(limit int) ([]domain.SwitchRecord, error) {
	rows, err := h.db.Query(`
		SELECT mode_id, mode_name, closed_apps, opened_apps, skipped, failed, success, switched_at
		FROM switches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.SwitchRecord
	for rows.Next() {
		var rec domain.SwitchRecord
		var success int
		var switchedAt int64
		if err := rows.Scan(&rec.ModeID, &rec.ModeName, &rec.ClosedApps,
			&rec.OpenedApps, &rec.Skipped, &rec.Failed, &success, &switchedAt); err != nil {
			return nil, err
		}
		rec.Success = success == 1
		rec.SwitchedAt = time.Unix(switchedAt, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database connection.
func (h *SwitchHistoryDB) Close() error {
	return h.db.Close()
}

// Ensure SwitchHistoryDB implements domain.SwitchHistory.
var _ domain.SwitchHistory = (*SwitchHistoryDB)(nil)
