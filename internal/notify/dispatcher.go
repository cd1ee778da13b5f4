// Package notify delivers alert notifications over the configured
// channels and appends every attempt, delivered or refused, to the
// bounded audit log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"cryptoalert/internal/config"
	"cryptoalert/internal/models"
)

var (
	// ErrChannelDisabled is returned when the requested channel exists but
	// is switched off in configuration. No I/O happens.
	ErrChannelDisabled = errors.New("channel disabled")
	// ErrNotImplemented is returned for channels the configuration
	// recognizes but that have no delivery mechanism yet.
	ErrNotImplemented = errors.New("channel not implemented")
	// ErrUnknownChannel is returned for channels outside the closed set.
	ErrUnknownChannel = errors.New("unknown channel")
)

var notificationsSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of notification attempts by channel and status",
	},
	[]string{"channel", "status"},
)

func init() {
	prometheus.MustRegister(notificationsSentTotal)
}

// Recorder appends notification attempts to the audit log.
type Recorder interface {
	RecordNotification(ctx context.Context, rec models.NotificationRecord) error
}

// Dispatcher fans a notification out to a single channel per call. It
// performs no retries and no queuing; the caller decides which channels
// to try and in what order.
type Dispatcher struct {
	cfg        config.NotificationsConfig
	recorder   Recorder
	log        *zap.Logger
	httpClient *http.Client
}

// New builds a Dispatcher. Every attempt is recorded through recorder.
func New(cfg config.NotificationsConfig, recorder Recorder, log *zap.Logger) *Dispatcher {
	timeout := cfg.Webhook.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		cfg:      cfg,
		recorder: recorder,
		log:      log,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send delivers one notification over one channel. A nil return means the
// channel accepted the message. Disabled and unimplemented channels fail
// fast without touching the network; either way the attempt lands in the
// audit log.
func (d *Dispatcher) Send(ctx context.Context, recipient, subject, body string, channel models.Channel, priority models.Priority) error {
	var sendErr error
	switch channel {
	case models.ChannelEmail:
		if !d.cfg.Email.Enabled {
			sendErr = fmt.Errorf("email: %w", ErrChannelDisabled)
		} else {
			sendErr = d.sendEmail(ctx, recipient, subject, body)
		}
	case models.ChannelWebhook:
		if !d.cfg.Webhook.Enabled {
			sendErr = fmt.Errorf("webhook: %w", ErrChannelDisabled)
		} else {
			sendErr = d.sendWebhook(ctx, recipient, subject, body)
		}
	case models.ChannelSMS:
		sendErr = fmt.Errorf("sms: %w", ErrNotImplemented)
	default:
		d.log.Error("Unknown notification channel", zap.String("channel", string(channel)))
		sendErr = fmt.Errorf("%w: %q", ErrUnknownChannel, string(channel))
	}

	d.record(ctx, recipient, subject, body, channel, priority, sendErr)

	if sendErr != nil {
		notificationsSentTotal.WithLabelValues(string(channel), "failure").Inc()
		d.log.Warn("Notification failed",
			zap.String("channel", string(channel)),
			zap.String("recipient", recipient),
			zap.Error(sendErr),
		)
		return sendErr
	}

	notificationsSentTotal.WithLabelValues(string(channel), "success").Inc()
	d.log.Info("Notification sent",
		zap.String("channel", string(channel)),
		zap.String("recipient", recipient),
	)
	return nil
}

func (d *Dispatcher) record(ctx context.Context, recipient, subject, body string, channel models.Channel, priority models.Priority, sendErr error) {
	rec := models.NotificationRecord{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Channel:   channel,
		Priority:  priority,
		SentAt:    time.Now(),
		Success:   sendErr == nil,
	}
	if sendErr != nil {
		rec.ErrorMessage = sendErr.Error()
	}

	if err := d.recorder.RecordNotification(ctx, rec); err != nil {
		d.log.Warn("Failed to record notification attempt",
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
	}
}
