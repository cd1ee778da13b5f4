package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cryptoalert/internal/alerts"
	"cryptoalert/internal/database"
	"cryptoalert/internal/models"
)

type fakeSource struct {
	prices map[string]models.PriceData
	err    error
	calls  int
	gotIDs []string
}

func (f *fakeSource) FetchBatch(_ context.Context, coinIDs []string) (map[string]models.PriceData, error) {
	f.calls++
	f.gotIDs = append([]string(nil), coinIDs...)
	if f.err != nil {
		return nil, f.err
	}
	return f.prices, nil
}

type sentNotification struct {
	recipient string
	subject   string
	body      string
	channel   models.Channel
	priority  models.Priority
}

type fakeNotifier struct {
	sends []sentNotification
	err   error
}

func (f *fakeNotifier) Send(_ context.Context, recipient, subject, body string, channel models.Channel, priority models.Priority) error {
	f.sends = append(f.sends, sentNotification{recipient, subject, body, channel, priority})
	return f.err
}

type fakePublisher struct {
	published []models.AlertRecord
	err       error
}

func (f *fakePublisher) PublishAlert(_ context.Context, rec models.AlertRecord) error {
	f.published = append(f.published, rec)
	return f.err
}

func fptr(v float64) *float64 { return &v }

func newTestMonitor(t *testing.T, source PriceSource, notifier Notifier, publisher AlertPublisher, channels ...models.Channel) (*Monitor, *database.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if len(channels) == 0 {
		channels = []models.Channel{models.ChannelEmail}
	}
	m := New(db, source, alerts.NewEngine(zap.NewNop()), notifier, publisher, Config{
		Recipient: "ops@example.com",
		Channels:  channels,
	}, zap.NewNop())
	return m, db
}

func TestRunCycleTriggersAlert(t *testing.T) {
	source := &fakeSource{prices: map[string]models.PriceData{
		"bitcoin": {
			USD:          100500,
			USDMarketCap: fptr(2.1e12),
			USD24hVol:    fptr(3.4e10),
			USD24hChange: fptr(1.8),
		},
	}}
	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}
	m, db := newTestMonitor(t, source, notifier, publisher)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), nil))
	require.NoError(t, m.RunCycle(ctx))

	wantMessage := "Alert!!! bitcoin is above threshold of $100000.00, current value is $100500.00"

	recs, err := db.GetAlerts(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	alert := recs[0]
	assert.Equal(t, "bitcoin", alert.CoinID)
	assert.Equal(t, models.DirectionAbove, alert.AlertType)
	assert.Equal(t, 100000.0, alert.Threshold)
	assert.Equal(t, 100500.0, alert.CurrentPrice)
	assert.Equal(t, wantMessage, alert.Message)
	assert.True(t, alert.NotificationSent, "delivered alerts are marked notified")
	assert.False(t, alert.TriggeredAt.IsZero())

	require.Len(t, notifier.sends, 1)
	sent := notifier.sends[0]
	assert.Equal(t, "ops@example.com", sent.recipient)
	assert.Equal(t, "Crypto Alert: bitcoin", sent.subject)
	assert.Equal(t, wantMessage, sent.body)
	assert.Equal(t, models.ChannelEmail, sent.channel)
	assert.Equal(t, models.PriorityHigh, sent.priority)

	require.Len(t, publisher.published, 1)
	pub := publisher.published[0]
	assert.Equal(t, alert.ID, pub.ID)
	assert.Equal(t, wantMessage, pub.Message)
	assert.False(t, pub.TriggeredAt.IsZero())

	history, err := db.GetPriceHistory(ctx, "bitcoin", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	sample := history[0]
	assert.Equal(t, 100500.0, sample.Price)
	require.NotNil(t, sample.Volume24h)
	assert.Equal(t, 3.4e10, *sample.Volume24h)
	require.NotNil(t, sample.MarketCap)
	assert.Equal(t, 2.1e12, *sample.MarketCap)
	require.NotNil(t, sample.PriceChangePct24h)
	assert.Equal(t, 1.8, *sample.PriceChangePct24h)
	assert.Nil(t, sample.PriceChange24h)
}

func TestRunCycleNoTrigger(t *testing.T) {
	source := &fakeSource{prices: map[string]models.PriceData{
		"bitcoin": {USD: 100500},
	}}
	notifier := &fakeNotifier{}
	m, db := newTestMonitor(t, source, notifier, nil)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(200000), nil))
	require.NoError(t, m.RunCycle(ctx))

	recs, err := db.GetAlerts(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, notifier.sends)

	// The sample is stored even when nothing fires.
	history, err := db.GetPriceHistory(ctx, "bitcoin", 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTriggerStatePersistsAcrossCycles(t *testing.T) {
	source := &fakeSource{prices: map[string]models.PriceData{
		"bitcoin": {USD: 100500},
	}}
	m, db := newTestMonitor(t, source, &fakeNotifier{}, nil)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), nil))
	require.NoError(t, m.RunCycle(ctx))
	require.NoError(t, m.RunCycle(ctx))

	cond, ok := m.conditions["bitcoin|above"]
	require.True(t, ok)
	assert.Equal(t, 2, cond.TriggerCount)
	require.NotNil(t, cond.LastTriggered)
	assert.WithinDuration(t, time.Now(), *cond.LastTriggered, time.Minute)

	recs, err := db.GetAlerts(ctx, "bitcoin", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRunCycleMissingPriceData(t *testing.T) {
	source := &fakeSource{prices: map[string]models.PriceData{
		"bitcoin": {USD: 100500},
	}}
	m, db := newTestMonitor(t, source, &fakeNotifier{}, nil)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), nil))
	require.NoError(t, db.AddToWatchlist(ctx, "ethereum", "Ethereum", fptr(2000), nil))
	require.NoError(t, m.RunCycle(ctx))

	// Watchlist order is by coin name, so both ids were requested.
	assert.Equal(t, []string{"bitcoin", "ethereum"}, source.gotIDs)

	recs, err := db.GetAlerts(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "bitcoin", recs[0].CoinID)

	history, err := db.GetPriceHistory(ctx, "ethereum", 1)
	require.NoError(t, err)
	assert.Empty(t, history, "coins without price data are skipped")
}

func TestRunCycleFetchError(t *testing.T) {
	source := &fakeSource{err: errors.New("upstream down")}
	m, db := newTestMonitor(t, source, &fakeNotifier{}, nil)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), nil))

	err := m.RunCycle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch prices")

	history, err := db.GetPriceHistory(ctx, "bitcoin", 1)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunCycleEmptyWatchlist(t *testing.T) {
	source := &fakeSource{}
	m, db := newTestMonitor(t, source, &fakeNotifier{}, nil)
	ctx := context.Background()

	require.NoError(t, m.RunCycle(ctx))
	assert.Equal(t, 0, source.calls)

	// Disabled entries don't count either.
	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), nil))
	require.NoError(t, db.SetEnabled(ctx, "bitcoin", false))
	require.NoError(t, m.RunCycle(ctx))
	assert.Equal(t, 0, source.calls)
}

func TestSyncConditionsDropsStale(t *testing.T) {
	source := &fakeSource{prices: map[string]models.PriceData{
		"bitcoin": {USD: 80000},
	}}
	m, db := newTestMonitor(t, source, &fakeNotifier{}, nil)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), fptr(60000)))
	require.NoError(t, m.RunCycle(ctx))
	assert.Len(t, m.conditions, 2)

	// Re-adding without a lower threshold clears it; the stale condition
	// disappears on the next cycle.
	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(90000), nil))
	require.NoError(t, m.RunCycle(ctx))

	require.Len(t, m.conditions, 1)
	cond, ok := m.conditions["bitcoin|above"]
	require.True(t, ok)
	assert.Equal(t, 90000.0, cond.Threshold)
}

func TestNotifierFailureLeavesAlertUnmarked(t *testing.T) {
	source := &fakeSource{prices: map[string]models.PriceData{
		"bitcoin": {USD: 100500},
	}}
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	publisher := &fakePublisher{}
	m, db := newTestMonitor(t, source, notifier, publisher)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), nil))
	require.NoError(t, m.RunCycle(ctx))

	recs, err := db.GetAlerts(ctx, "bitcoin", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].NotificationSent)

	// The feed still carries the alert.
	assert.Len(t, publisher.published, 1)
}

func TestRunCycleFansOutToAllChannels(t *testing.T) {
	source := &fakeSource{prices: map[string]models.PriceData{
		"bitcoin": {USD: 100500},
	}}
	notifier := &fakeNotifier{}
	m, db := newTestMonitor(t, source, notifier, nil, models.ChannelEmail, models.ChannelWebhook)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), nil))
	require.NoError(t, m.RunCycle(ctx))

	require.Len(t, notifier.sends, 2)
	assert.Equal(t, models.ChannelEmail, notifier.sends[0].channel)
	assert.Equal(t, models.ChannelWebhook, notifier.sends[1].channel)
}
