// Package monitor runs the poll cycle: read the watchlist, fetch prices,
// persist samples, evaluate alert conditions, and hand triggered alerts to
// storage, notification channels, and the live feed.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"cryptoalert/internal/alerts"
	"cryptoalert/internal/database"
	"cryptoalert/internal/models"
)

var (
	pollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Total number of poll cycles by outcome",
		},
		[]string{"status"},
	)
	alertsTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_triggered_total",
			Help: "Total number of alerts triggered",
		},
	)
)

func init() {
	prometheus.MustRegister(pollCyclesTotal, alertsTriggeredTotal)
}

// PriceSource fetches current prices for a set of coin ids.
type PriceSource interface {
	FetchBatch(ctx context.Context, coinIDs []string) (map[string]models.PriceData, error)
}

// Notifier delivers one notification over one channel.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string, channel models.Channel, priority models.Priority) error
}

// AlertPublisher pushes triggered alerts to the live feed.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, rec models.AlertRecord) error
}

// Config carries the dispatch settings the monitor needs per trigger.
type Config struct {
	Recipient string
	Channels  []models.Channel
}

// Monitor owns the in-memory alert conditions and drives one poll cycle at
// a time. It is not safe for concurrent RunCycle calls; the owning loop
// runs cycles strictly one after another.
type Monitor struct {
	db        *database.DB
	source    PriceSource
	engine    *alerts.Engine
	notifier  Notifier
	publisher AlertPublisher
	cfg       Config
	log       *zap.Logger

	// conditions is keyed by "coin_id|direction" and survives across
	// cycles so trigger state accumulates. Thresholds are refreshed from
	// the watchlist every cycle.
	conditions map[string]*models.AlertCondition
}

// New builds a Monitor. publisher may be nil when the live feed is not
// configured.
func New(db *database.DB, source PriceSource, engine *alerts.Engine, notifier Notifier, publisher AlertPublisher, cfg Config, log *zap.Logger) *Monitor {
	return &Monitor{
		db:         db,
		source:     source,
		engine:     engine,
		notifier:   notifier,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
		conditions: make(map[string]*models.AlertCondition),
	}
}

// RunCycle executes one poll cycle over the enabled watchlist. Failures on
// individual coins are logged and skipped; only watchlist and batch fetch
// failures abort the cycle.
func (m *Monitor) RunCycle(ctx context.Context) error {
	tracer := otel.Tracer("cryptoalert/monitor")
	ctx, span := tracer.Start(ctx, "PollCycle")
	defer span.End()

	log := m.log.With(zap.String("cycle_id", uuid.NewString()))

	entries, err := m.db.GetWatchlist(ctx)
	if err != nil {
		pollCyclesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("load watchlist: %w", err)
	}
	if len(entries) == 0 {
		log.Info("Watchlist empty, nothing to poll")
		pollCyclesTotal.WithLabelValues("success").Inc()
		return nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.CoinID)
	}

	fetchCtx, fetchSpan := tracer.Start(ctx, "FetchPrices")
	prices, err := m.source.FetchBatch(fetchCtx, ids)
	fetchSpan.End()
	if err != nil {
		log.Error("Failed to fetch prices", zap.Error(err))
		pollCyclesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("fetch prices: %w", err)
	}

	m.syncConditions(entries)

	triggered := 0
	for _, entry := range entries {
		data, ok := prices[entry.CoinID]
		if !ok {
			log.Warn("No price data for coin", zap.String("coin_id", entry.CoinID))
			continue
		}

		n, err := m.processEntry(ctx, log, entry, data)
		if err != nil {
			log.Error("Failed to process watchlist entry",
				zap.String("coin_id", entry.CoinID),
				zap.Error(err),
			)
			continue
		}
		triggered += n
	}

	log.Info("Poll cycle complete",
		zap.Int("coins", len(entries)),
		zap.Int("alerts_triggered", triggered),
	)
	pollCyclesTotal.WithLabelValues("success").Inc()
	return nil
}

// syncConditions reconciles the condition map with the current watchlist.
// Existing conditions keep their trigger state but take the watchlist's
// current threshold; conditions whose entry or threshold went away are
// dropped.
func (m *Monitor) syncConditions(entries []models.WatchlistEntry) {
	seen := make(map[string]bool, len(entries)*2)
	for _, e := range entries {
		if e.ThresholdAbove != nil {
			m.syncCondition(e.CoinID, models.DirectionAbove, *e.ThresholdAbove, seen)
		}
		if e.ThresholdBelow != nil {
			m.syncCondition(e.CoinID, models.DirectionBelow, *e.ThresholdBelow, seen)
		}
	}
	for key := range m.conditions {
		if !seen[key] {
			delete(m.conditions, key)
		}
	}
}

func (m *Monitor) syncCondition(coinID string, dir models.Direction, threshold float64, seen map[string]bool) {
	key := conditionKey(coinID, dir)
	seen[key] = true

	if cond, ok := m.conditions[key]; ok {
		cond.Threshold = threshold
		cond.Enabled = true
		return
	}
	m.conditions[key] = &models.AlertCondition{
		CoinID:    coinID,
		Threshold: threshold,
		Direction: dir,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
}

func conditionKey(coinID string, dir models.Direction) string {
	return coinID + "|" + string(dir)
}

// processEntry saves the price sample and evaluates the entry's conditions,
// returning how many alerts fired.
func (m *Monitor) processEntry(ctx context.Context, log *zap.Logger, entry models.WatchlistEntry, data models.PriceData) (int, error) {
	sample := models.PriceSample{
		CoinID:    entry.CoinID,
		Price:     data.USD,
		Volume24h: data.USD24hVol,
		MarketCap: data.USDMarketCap,
		// The price API reports the 24h change as a percentage; the
		// absolute change column stays NULL.
		PriceChangePct24h: data.USD24hChange,
	}
	if err := m.db.SavePriceSample(ctx, sample); err != nil {
		return 0, err
	}

	triggered := 0
	for _, dir := range []models.Direction{models.DirectionAbove, models.DirectionBelow} {
		cond, ok := m.conditions[conditionKey(entry.CoinID, dir)]
		if !ok {
			continue
		}

		fired, message := m.engine.Evaluate(data.USD, cond)
		if !fired {
			log.Debug("Alert check",
				zap.String("coin_id", entry.CoinID),
				zap.String("direction", string(dir)),
				zap.String("result", message),
			)
			continue
		}

		triggered++
		m.handleTrigger(ctx, log, cond, data.USD, message)
	}
	return triggered, nil
}

// handleTrigger records the alert, fans it out to the configured channels,
// marks it notified when at least one channel accepted it, and publishes it
// to the live feed. Each step failing is logged without undoing the
// previous steps.
func (m *Monitor) handleTrigger(ctx context.Context, log *zap.Logger, cond *models.AlertCondition, price float64, message string) {
	alertsTriggeredTotal.Inc()
	log.Info("Alert triggered",
		zap.String("coin_id", cond.CoinID),
		zap.String("direction", string(cond.Direction)),
		zap.Float64("threshold", cond.Threshold),
		zap.Float64("current_price", price),
	)

	rec := models.AlertRecord{
		CoinID:       cond.CoinID,
		AlertType:    cond.Direction,
		Threshold:    cond.Threshold,
		CurrentPrice: price,
		Message:      message,
	}
	if cond.LastTriggered != nil {
		rec.TriggeredAt = *cond.LastTriggered
	}

	alertID, err := m.db.SaveAlert(ctx, rec)
	if err != nil {
		log.Error("Failed to save alert",
			zap.String("coin_id", cond.CoinID),
			zap.Error(err),
		)
	}
	rec.ID = alertID

	subject := fmt.Sprintf("Crypto Alert: %s", cond.CoinID)
	delivered := false
	for _, channel := range m.cfg.Channels {
		if err := m.notifier.Send(ctx, m.cfg.Recipient, subject, message, channel, models.PriorityHigh); err != nil {
			// Send already logged and recorded the failure.
			continue
		}
		delivered = true
	}

	if delivered && alertID != 0 {
		if err := m.db.MarkAlertNotified(ctx, alertID); err != nil {
			log.Error("Failed to mark alert notified",
				zap.Int64("alert_id", alertID),
				zap.Error(err),
			)
		}
	}

	if m.publisher != nil {
		if rec.TriggeredAt.IsZero() {
			rec.TriggeredAt = time.Now()
		}
		if err := m.publisher.PublishAlert(ctx, rec); err != nil {
			log.Warn("Failed to publish alert to feed",
				zap.String("coin_id", cond.CoinID),
				zap.Error(err),
			)
		}
	}
}
