package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when an operation matched no row.
	ErrNotFound = errors.New("not found")
	// ErrNoThresholds is returned when a threshold update carries nothing to set.
	ErrNoThresholds = errors.New("at least one threshold must be provided")
)

// timeLayout is SQLite's CURRENT_TIMESTAMP shape. Timestamps are stored as
// UTC strings in this form so lexicographic order equals chronological order
// and rows stay readable from the sqlite3 shell.
const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// DB is the SQLite handle shared by the watchlist, price history, alert and
// notification stores. Every operation runs its own short statement or
// transaction; nothing holds the connection across a network call.
type DB struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens the database file, creating it and its directory if needed,
// and applies the schema.
func Open(path string, log *zap.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("Database connection established", zap.String("path", path))
	return &DB{db: db, log: log}, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS watchlist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			coin_id TEXT NOT NULL UNIQUE,
			coin_name TEXT NOT NULL,
			threshold_above REAL,
			threshold_below REAL,
			enabled BOOLEAN DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			coin_id TEXT NOT NULL,
			price REAL NOT NULL,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			volume_24h REAL,
			market_cap REAL,
			price_change_24h REAL,
			price_change_percentage_24h REAL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			coin_id TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			threshold REAL NOT NULL,
			current_price REAL NOT NULL,
			message TEXT NOT NULL,
			triggered_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			acknowledged BOOLEAN DEFAULT 0,
			notification_sent BOOLEAN DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			notification_type TEXT NOT NULL,
			priority TEXT DEFAULT 'normal',
			sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			success BOOLEAN DEFAULT 0,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_coin_timestamp ON price_history(coin_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_timestamp ON price_history(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_coin_triggered ON alerts(coin_id, triggered_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_acknowledged ON alerts(acknowledged)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_coin_id ON watchlist(coin_id)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_enabled ON watchlist(enabled)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Helper to convert nullable float columns
func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
