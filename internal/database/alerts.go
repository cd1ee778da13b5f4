package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cryptoalert/internal/models"
)

// defaultAlertLimit caps unbounded alert queries.
const defaultAlertLimit = 100

// SaveAlert appends a triggered alert and returns its row id. A zero
// TriggeredAt is stamped with the current time.
func (d *DB) SaveAlert(ctx context.Context, rec models.AlertRecord) (int64, error) {
	triggeredAt := rec.TriggeredAt
	if triggeredAt.IsZero() {
		triggeredAt = time.Now()
	}

	query := `
		INSERT INTO alerts (coin_id, alert_type, threshold, current_price, message, triggered_at, acknowledged, notification_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := d.db.ExecContext(ctx, query,
		rec.CoinID,
		string(rec.AlertType),
		rec.Threshold,
		rec.CurrentPrice,
		rec.Message,
		formatTime(triggeredAt),
		rec.Acknowledged,
		rec.NotificationSent,
	)
	if err != nil {
		d.log.Error("Failed to save alert",
			zap.String("coin_id", rec.CoinID),
			zap.Error(err),
		)
		return 0, fmt.Errorf("save alert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	d.log.Info("Saved alert",
		zap.Int64("alert_id", id),
		zap.String("coin_id", rec.CoinID),
		zap.String("alert_type", string(rec.AlertType)),
	)
	return id, nil
}

// GetAlerts returns recent alerts, newest first. An empty coinID covers all
// coins; a non-positive limit falls back to defaultAlertLimit.
func (d *DB) GetAlerts(ctx context.Context, coinID string, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = defaultAlertLimit
	}

	query := `
		SELECT id, coin_id, alert_type, threshold, current_price, message, triggered_at, acknowledged, notification_sent
		FROM alerts
	`
	args := make([]interface{}, 0, 2)
	if coinID != "" {
		query += ` WHERE coin_id = ?`
		args = append(args, coinID)
	}
	query += ` ORDER BY triggered_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		d.log.Error("Failed to query alerts",
			zap.String("coin_id", coinID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var (
			rec         models.AlertRecord
			alertType   string
			triggeredAt string
		)
		if err := rows.Scan(&rec.ID, &rec.CoinID, &alertType, &rec.Threshold, &rec.CurrentPrice, &rec.Message, &triggeredAt, &rec.Acknowledged, &rec.NotificationSent); err != nil {
			return nil, err
		}

		rec.AlertType = models.Direction(alertType)
		if rec.TriggeredAt, err = parseTime(triggeredAt); err != nil {
			return nil, err
		}

		alerts = append(alerts, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert as seen. Acknowledging an already
// acknowledged alert is a no-op; an unknown id is ErrNotFound.
func (d *DB) AcknowledgeAlert(ctx context.Context, id int64) error {
	result, err := d.db.ExecContext(ctx, `UPDATE alerts SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		d.log.Error("Failed to acknowledge alert",
			zap.Int64("alert_id", id),
			zap.Error(err),
		)
		return fmt.Errorf("acknowledge alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: alert %d", ErrNotFound, id)
	}

	d.log.Info("Acknowledged alert", zap.Int64("alert_id", id))
	return nil
}

// MarkAlertNotified records that at least one notification channel
// accepted the alert.
func (d *DB) MarkAlertNotified(ctx context.Context, id int64) error {
	result, err := d.db.ExecContext(ctx, `UPDATE alerts SET notification_sent = 1 WHERE id = ?`, id)
	if err != nil {
		d.log.Error("Failed to mark alert notified",
			zap.Int64("alert_id", id),
			zap.Error(err),
		)
		return fmt.Errorf("mark alert notified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: alert %d", ErrNotFound, id)
	}
	return nil
}
