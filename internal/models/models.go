package models

import (
	"fmt"
	"time"
)

// Direction identifies the comparison a condition applies to a price sample.
type Direction string

const (
	DirectionAbove            Direction = "above"
	DirectionBelow            Direction = "below"
	DirectionPercentageChange Direction = "percentage_change"
	DirectionVolatility       Direction = "volatility"
)

// ParseDirection validates a raw direction string at the boundary.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionAbove, DirectionBelow, DirectionPercentageChange, DirectionVolatility:
		return d, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Channel identifies a notification delivery mechanism.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
	ChannelSMS     Channel = "sms"
)

// ParseChannel validates a raw channel string at the boundary.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelEmail, ChannelWebhook, ChannelSMS:
		return c, nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// Priority classifies how urgent a notification is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority validates a raw priority string at the boundary.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// WatchlistEntry represents a tracked coin and its alert thresholds
type WatchlistEntry struct {
	ID             int64     `json:"id" db:"id"`
	CoinID         string    `json:"coin_id" db:"coin_id"`
	CoinName       string    `json:"coin_name" db:"coin_name"`
	ThresholdAbove *float64  `json:"threshold_above,omitempty" db:"threshold_above"`
	ThresholdBelow *float64  `json:"threshold_below,omitempty" db:"threshold_below"`
	Enabled        bool      `json:"enabled" db:"enabled"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// PriceData is the per-coin payload returned by the price API
type PriceData struct {
	USD          float64  `json:"usd"`
	USDMarketCap *float64 `json:"usd_market_cap,omitempty"`
	USD24hVol    *float64 `json:"usd_24h_vol,omitempty"`
	USD24hChange *float64 `json:"usd_24h_change,omitempty"`
}

// PriceSample is one stored observation of a coin's price
type PriceSample struct {
	ID                int64     `json:"id" db:"id"`
	CoinID            string    `json:"coin_id" db:"coin_id"`
	Price             float64   `json:"price" db:"price"`
	CapturedAt        time.Time `json:"timestamp" db:"timestamp"`
	Volume24h         *float64  `json:"volume_24h,omitempty" db:"volume_24h"`
	MarketCap         *float64  `json:"market_cap,omitempty" db:"market_cap"`
	PriceChange24h    *float64  `json:"price_change_24h,omitempty" db:"price_change_24h"`
	PriceChangePct24h *float64  `json:"price_change_percentage_24h,omitempty" db:"price_change_percentage_24h"`
}

// AlertCondition is the in-memory evaluation unit derived from a watchlist
// entry. Trigger state survives across poll cycles; only a triggering
// evaluation mutates it.
type AlertCondition struct {
	CoinID        string     `json:"coin_id"`
	Threshold     float64    `json:"threshold"`
	Direction     Direction  `json:"direction"`
	Enabled       bool       `json:"enabled"`
	CreatedAt     time.Time  `json:"created_at"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	TriggerCount  int        `json:"trigger_count"`
}

// AlertRecord is a durable log entry for a triggered alert
type AlertRecord struct {
	ID               int64     `json:"id" db:"id"`
	CoinID           string    `json:"coin_id" db:"coin_id"`
	AlertType        Direction `json:"alert_type" db:"alert_type"`
	Threshold        float64   `json:"threshold" db:"threshold"`
	CurrentPrice     float64   `json:"current_price" db:"current_price"`
	Message          string    `json:"message" db:"message"`
	TriggeredAt      time.Time `json:"triggered_at" db:"triggered_at"`
	Acknowledged     bool      `json:"acknowledged" db:"acknowledged"`
	NotificationSent bool      `json:"notification_sent" db:"notification_sent"`
}

// NotificationRecord is one entry of the bounded delivery audit log
type NotificationRecord struct {
	ID           int64     `json:"id" db:"id"`
	Recipient    string    `json:"recipient" db:"recipient"`
	Subject      string    `json:"subject" db:"subject"`
	Body         string    `json:"body" db:"body"`
	Channel      Channel   `json:"notification_type" db:"notification_type"`
	Priority     Priority  `json:"priority" db:"priority"`
	SentAt       time.Time `json:"sent_at" db:"sent_at"`
	Success      bool      `json:"success" db:"success"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
}
