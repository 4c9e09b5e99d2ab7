package capability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS capabilities (
	slot       TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB is a Store backed by a local SQLite database.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("capability: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("capability: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("capability: apply schema: %w", err)
	}
	return &DB{conn: conn, logger: logger}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Put stores h for slot, replacing any earlier binding.
func (db *DB) Put(ctx context.Context, slot string, h Handle) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("capability: invalid handle: %w", err)
	}
	record, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("capability: encode: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO capabilities (slot, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			record     = excluded.record,
			updated_at = excluded.updated_at
	`, slot, string(record), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("capability: put %s: %w", slot, err)
	}
	return nil
}

// Get returns the binding stored in slot.
func (db *DB) Get(ctx context.Context, slot string) (Handle, bool) {
	var record string
	err := db.conn.QueryRowContext(ctx, `SELECT record FROM capabilities WHERE slot = ?`, slot).Scan(&record)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			db.logger.Warn("capability: read failed", slog.String("slot", slot), slog.String("error", err.Error()))
		}
		return Handle{}, false
	}
	var h Handle
	if err := json.Unmarshal([]byte(record), &h); err != nil {
		db.logger.Warn("capability: decode failed", slog.String("slot", slot), slog.String("error", err.Error()))
		return Handle{}, false
	}
	if err := h.Validate(); err != nil {
		db.logger.Warn("capability: stored handle invalid", slog.String("slot", slot), slog.String("error", err.Error()))
		return Handle{}, false
	}
	return h, true
}

// Remove deletes the binding in slot.
func (db *DB) Remove(ctx context.Context, slot string) {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM capabilities WHERE slot = ?`, slot); err != nil {
		db.logger.Warn("capability: remove failed", slog.String("slot", slot), slog.String("error", err.Error()))
	}
}
