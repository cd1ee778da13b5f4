package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Stats summarizes table sizes and the on-disk footprint.
type Stats struct {
	WatchlistRows    int64 `json:"watchlist_rows"`
	PriceHistoryRows int64 `json:"price_history_rows"`
	AlertRows        int64 `json:"alert_rows"`
	NotificationRows int64 `json:"notification_rows"`
	SizeBytes        int64 `json:"size_bytes"`
}

// Backup writes a consistent point-in-time copy of the database to
// destPath via VACUUM INTO, replacing any previous backup at that path.
func (d *DB) Backup(ctx context.Context, destPath string) error {
	if dir := filepath.Dir(destPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("backup: create directory: %w", err)
		}
	}
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backup: remove previous backup: %w", err)
	}

	if _, err := d.db.ExecContext(ctx, `VACUUM INTO ?`, destPath); err != nil {
		d.log.Error("Failed to back up database",
			zap.String("dest", destPath),
			zap.Error(err),
		)
		return fmt.Errorf("backup: %w", err)
	}

	d.log.Info("Database backed up", zap.String("dest", destPath))
	return nil
}

// Vacuum rebuilds the database file, reclaiming space freed by cleanup
// and eviction.
func (d *DB) Vacuum(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `VACUUM`); err != nil {
		d.log.Error("Failed to vacuum database", zap.Error(err))
		return fmt.Errorf("vacuum: %w", err)
	}

	d.log.Info("Vacuumed database")
	return nil
}

// Stats returns per-table row counts and the database size in bytes.
func (d *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats

	counts := []struct {
		table string
		dst   *int64
	}{
		{"watchlist", &s.WatchlistRows},
		{"price_history", &s.PriceHistoryRows},
		{"alerts", &s.AlertRows},
		{"notifications", &s.NotificationRows},
	}
	for _, c := range counts {
		if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("count %s: %w", c.table, err)
		}
	}

	sizeQuery := `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`
	if err := d.db.QueryRowContext(ctx, sizeQuery).Scan(&s.SizeBytes); err != nil {
		return Stats{}, fmt.Errorf("database size: %w", err)
	}

	return s, nil
}
