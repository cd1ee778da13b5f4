package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cryptoalert/internal/models"
)

// AddToWatchlist inserts or updates the tracked coin keyed by coinID.
// Re-adding an existing coin keeps its row id and created_at; the new name
// and thresholds win and the entry is re-enabled.
func (d *DB) AddToWatchlist(ctx context.Context, coinID, coinName string, thresholdAbove, thresholdBelow *float64) error {
	query := `
		INSERT INTO watchlist (coin_id, coin_name, threshold_above, threshold_below)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(coin_id) DO UPDATE SET
			coin_name = excluded.coin_name,
			threshold_above = excluded.threshold_above,
			threshold_below = excluded.threshold_below,
			enabled = 1,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := d.db.ExecContext(ctx, query, coinID, coinName, thresholdAbove, thresholdBelow)
	if err != nil {
		d.log.Error("Failed to add coin to watchlist",
			zap.String("coin_id", coinID),
			zap.Error(err),
		)
		return fmt.Errorf("add to watchlist: %w", err)
	}

	d.log.Info("Added coin to watchlist", zap.String("coin_id", coinID))
	return nil
}

// RemoveFromWatchlist deletes the coin's entry. Removing an unknown coin
// returns ErrNotFound and leaves the table unchanged.
func (d *DB) RemoveFromWatchlist(ctx context.Context, coinID string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM watchlist WHERE coin_id = ?`, coinID)
	if err != nil {
		d.log.Error("Failed to remove coin from watchlist",
			zap.String("coin_id", coinID),
			zap.Error(err),
		)
		return fmt.Errorf("remove from watchlist: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: coin %q not in watchlist", ErrNotFound, coinID)
	}

	d.log.Info("Removed coin from watchlist", zap.String("coin_id", coinID))
	return nil
}

// UpdateThresholds changes one or both thresholds of an existing entry.
// Nil arguments leave the corresponding column untouched; both nil is
// ErrNoThresholds.
func (d *DB) UpdateThresholds(ctx context.Context, coinID string, thresholdAbove, thresholdBelow *float64) error {
	if thresholdAbove == nil && thresholdBelow == nil {
		return ErrNoThresholds
	}

	setClauses := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if thresholdAbove != nil {
		setClauses = append(setClauses, "threshold_above = ?")
		args = append(args, *thresholdAbove)
	}
	if thresholdBelow != nil {
		setClauses = append(setClauses, "threshold_below = ?")
		args = append(args, *thresholdBelow)
	}
	setClauses = append(setClauses, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, coinID)

	query := fmt.Sprintf("UPDATE watchlist SET %s WHERE coin_id = ?", strings.Join(setClauses, ", "))

	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		d.log.Error("Failed to update thresholds",
			zap.String("coin_id", coinID),
			zap.Error(err),
		)
		return fmt.Errorf("update thresholds: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: coin %q not in watchlist", ErrNotFound, coinID)
	}

	d.log.Info("Updated thresholds", zap.String("coin_id", coinID))
	return nil
}

// SetEnabled soft-disables or re-enables a watchlist entry without losing
// its thresholds.
func (d *DB) SetEnabled(ctx context.Context, coinID string, enabled bool) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE watchlist SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE coin_id = ?`,
		enabled, coinID,
	)
	if err != nil {
		d.log.Error("Failed to update enabled flag",
			zap.String("coin_id", coinID),
			zap.Error(err),
		)
		return fmt.Errorf("set enabled: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: coin %q not in watchlist", ErrNotFound, coinID)
	}
	return nil
}

// GetWatchlist returns all enabled entries ordered by display name, the
// evaluation order of a poll cycle.
func (d *DB) GetWatchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	query := `
		SELECT id, coin_id, coin_name, threshold_above, threshold_below, enabled, created_at, updated_at
		FROM watchlist
		WHERE enabled = 1
		ORDER BY coin_name
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		d.log.Error("Failed to query watchlist", zap.Error(err))
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	return scanWatchlistEntries(rows)
}

// GetAllWatchlistEntries returns every entry, disabled ones included,
// ordered by display name.
func (d *DB) GetAllWatchlistEntries(ctx context.Context) ([]models.WatchlistEntry, error) {
	query := `
		SELECT id, coin_id, coin_name, threshold_above, threshold_below, enabled, created_at, updated_at
		FROM watchlist
		ORDER BY coin_name
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		d.log.Error("Failed to query watchlist", zap.Error(err))
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	return scanWatchlistEntries(rows)
}

// GetWatchlistEntry returns a single entry regardless of its enabled flag.
func (d *DB) GetWatchlistEntry(ctx context.Context, coinID string) (*models.WatchlistEntry, error) {
	query := `
		SELECT id, coin_id, coin_name, threshold_above, threshold_below, enabled, created_at, updated_at
		FROM watchlist
		WHERE coin_id = ?
	`

	var (
		e                    models.WatchlistEntry
		above, below         sql.NullFloat64
		createdAt, updatedAt string
	)
	err := d.db.QueryRowContext(ctx, query, coinID).Scan(
		&e.ID,
		&e.CoinID,
		&e.CoinName,
		&above,
		&below,
		&e.Enabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: coin %q not in watchlist", ErrNotFound, coinID)
		}
		d.log.Error("Failed to query watchlist entry",
			zap.String("coin_id", coinID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("query watchlist entry: %w", err)
	}

	e.ThresholdAbove = floatPtr(above)
	e.ThresholdBelow = floatPtr(below)
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// Helper function to scan watchlist rows
func scanWatchlistEntries(rows *sql.Rows) ([]models.WatchlistEntry, error) {
	var entries []models.WatchlistEntry

	for rows.Next() {
		var (
			e                    models.WatchlistEntry
			above, below         sql.NullFloat64
			createdAt, updatedAt string
		)
		if err := rows.Scan(&e.ID, &e.CoinID, &e.CoinName, &above, &below, &e.Enabled, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		e.ThresholdAbove = floatPtr(above)
		e.ThresholdBelow = floatPtr(below)

		var err error
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
