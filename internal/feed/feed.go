// Package feed broadcasts triggered alerts over Redis pub/sub so
// dashboards and other processes can follow the stream live. The feed is
// optional; the monitor runs without it when no Redis address is
// configured.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cryptoalert/internal/models"
)

// alertChannel is the pub/sub channel alert messages go out on.
const alertChannel = "price_alerts"

// AlertMessage is the wire shape published for each triggered alert.
type AlertMessage struct {
	ID           string    `json:"id"`
	CoinID       string    `json:"coin_id"`
	AlertType    string    `json:"alert_type"`
	Threshold    float64   `json:"threshold"`
	CurrentPrice float64   `json:"current_price"`
	Message      string    `json:"message"`
	TriggeredAt  time.Time `json:"triggered_at"`
}

// Publisher pushes alert messages to the Redis channel.
type Publisher struct {
	client *redis.Client
	log    *zap.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(addr string, log *zap.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("feed: ping redis at %s: %w", addr, err)
	}

	log.Info("Connected to Redis alert feed", zap.String("addr", addr))
	return &Publisher{client: client, log: log}, nil
}

// PublishAlert sends one triggered alert to the feed. Each message gets
// its own uuid so subscribers can deduplicate.
func (p *Publisher) PublishAlert(ctx context.Context, rec models.AlertRecord) error {
	msg := AlertMessage{
		ID:           uuid.NewString(),
		CoinID:       rec.CoinID,
		AlertType:    string(rec.AlertType),
		Threshold:    rec.Threshold,
		CurrentPrice: rec.CurrentPrice,
		Message:      rec.Message,
		TriggeredAt:  rec.TriggeredAt,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("feed: encode alert: %w", err)
	}

	if err := p.client.Publish(ctx, alertChannel, payload).Err(); err != nil {
		return fmt.Errorf("feed: publish alert: %w", err)
	}

	p.log.Debug("Published alert to feed",
		zap.String("message_id", msg.ID),
		zap.String("coin_id", msg.CoinID),
	)
	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
