package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cryptoalert/internal/models"
)

// SavePriceSample appends one price observation. A zero CapturedAt is
// stamped with the current time.
func (d *DB) SavePriceSample(ctx context.Context, sample models.PriceSample) error {
	capturedAt := sample.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	query := `
		INSERT INTO price_history (coin_id, price, timestamp, volume_24h, market_cap, price_change_24h, price_change_percentage_24h)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(ctx, query,
		sample.CoinID,
		sample.Price,
		formatTime(capturedAt),
		sample.Volume24h,
		sample.MarketCap,
		sample.PriceChange24h,
		sample.PriceChangePct24h,
	)
	if err != nil {
		d.log.Error("Failed to save price sample",
			zap.String("coin_id", sample.CoinID),
			zap.Error(err),
		)
		return fmt.Errorf("save price sample: %w", err)
	}

	d.log.Debug("Saved price sample",
		zap.String("coin_id", sample.CoinID),
		zap.Float64("price", sample.Price),
	)
	return nil
}

// GetPriceHistory returns the coin's samples from the last `days` days in
// chronological order. A non-positive days falls back to 30.
func (d *DB) GetPriceHistory(ctx context.Context, coinID string, days int) ([]models.PriceSample, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := formatTime(time.Now().AddDate(0, 0, -days))

	query := `
		SELECT id, coin_id, price, timestamp, volume_24h, market_cap, price_change_24h, price_change_percentage_24h
		FROM price_history
		WHERE coin_id = ? AND timestamp >= ?
		ORDER BY timestamp, id
	`

	rows, err := d.db.QueryContext(ctx, query, coinID, cutoff)
	if err != nil {
		d.log.Error("Failed to query price history",
			zap.String("coin_id", coinID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	var samples []models.PriceSample
	for rows.Next() {
		var (
			s                      models.PriceSample
			capturedAt             string
			volume, marketCap      sql.NullFloat64
			change24h, changePct24 sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.CoinID, &s.Price, &capturedAt, &volume, &marketCap, &change24h, &changePct24); err != nil {
			return nil, err
		}

		if s.CapturedAt, err = parseTime(capturedAt); err != nil {
			return nil, err
		}
		s.Volume24h = floatPtr(volume)
		s.MarketCap = floatPtr(marketCap)
		s.PriceChange24h = floatPtr(change24h)
		s.PriceChangePct24h = floatPtr(changePct24)

		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// CleanupOldPriceData deletes samples older than the retention window and
// reports how many rows went away.
func (d *DB) CleanupOldPriceData(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("cleanup: retention days must be positive, got %d", days)
	}
	cutoff := formatTime(time.Now().AddDate(0, 0, -days))

	result, err := d.db.ExecContext(ctx, `DELETE FROM price_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		d.log.Error("Failed to clean up price history", zap.Error(err))
		return 0, fmt.Errorf("cleanup price history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	d.log.Info("Cleaned up old price data",
		zap.Int64("rows_deleted", deleted),
		zap.Int("retention_days", days),
	)
	return deleted, nil
}
