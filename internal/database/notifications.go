package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cryptoalert/internal/models"
)

const (
	// maxNotificationRows bounds the delivery audit log. Older rows are
	// evicted FIFO as new attempts come in.
	maxNotificationRows = 1000

	defaultNotificationLimit = 50
)

// RecordNotification appends one delivery attempt (successful or not) to
// the audit log and evicts the oldest rows beyond maxNotificationRows.
// Insert and eviction commit together.
func (d *DB) RecordNotification(ctx context.Context, rec models.NotificationRecord) error {
	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	priority := rec.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	var errMsg sql.NullString
	if rec.ErrorMessage != "" {
		errMsg = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record notification: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (recipient, subject, body, notification_type, priority, sent_at, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Recipient,
		rec.Subject,
		rec.Body,
		string(rec.Channel),
		string(priority),
		formatTime(sentAt),
		rec.Success,
		errMsg,
	)
	if err != nil {
		d.log.Error("Failed to record notification",
			zap.String("channel", string(rec.Channel)),
			zap.Error(err),
		)
		return fmt.Errorf("record notification: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE id NOT IN (SELECT id FROM notifications ORDER BY id DESC LIMIT ?)
	`, maxNotificationRows)
	if err != nil {
		d.log.Error("Failed to evict old notifications", zap.Error(err))
		return fmt.Errorf("record notification: evict: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record notification: commit: %w", err)
	}
	return nil
}

// RecentNotifications returns the latest audit log entries, newest first.
// A non-positive limit falls back to defaultNotificationLimit.
func (d *DB) RecentNotifications(ctx context.Context, limit int) ([]models.NotificationRecord, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}

	query := `
		SELECT id, recipient, subject, body, notification_type, priority, sent_at, success, error_message
		FROM notifications
		ORDER BY sent_at DESC, id DESC
		LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		d.log.Error("Failed to query notifications", zap.Error(err))
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var records []models.NotificationRecord
	for rows.Next() {
		var (
			rec               models.NotificationRecord
			channel, priority string
			sentAt            string
			errMsg            sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Recipient, &rec.Subject, &rec.Body, &channel, &priority, &sentAt, &rec.Success, &errMsg); err != nil {
			return nil, err
		}

		rec.Channel = models.Channel(channel)
		rec.Priority = models.Priority(priority)
		rec.ErrorMessage = errMsg.String
		if rec.SentAt, err = parseTime(sentAt); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
