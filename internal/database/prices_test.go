package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoalert/internal/models"
)

func TestSaveAndGetPriceHistory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// Insert out of chronological order.
	samples := []models.PriceSample{
		{CoinID: "bitcoin", Price: 50100, CapturedAt: now.Add(-1 * time.Hour)},
		{CoinID: "bitcoin", Price: 50300, CapturedAt: now.Add(-3 * time.Hour), Volume24h: fptr(1.5e9), MarketCap: fptr(9.8e11), PriceChangePct24h: fptr(-2.4)},
		{CoinID: "bitcoin", Price: 50200, CapturedAt: now.Add(-2 * time.Hour)},
		{CoinID: "ethereum", Price: 1800, CapturedAt: now.Add(-1 * time.Hour)},
	}
	for _, s := range samples {
		require.NoError(t, db.SavePriceSample(ctx, s))
	}

	history, err := db.GetPriceHistory(ctx, "bitcoin", 30)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Chronological order regardless of insert order.
	assert.Equal(t, 50300.0, history[0].Price)
	assert.Equal(t, 50200.0, history[1].Price)
	assert.Equal(t, 50100.0, history[2].Price)

	oldest := history[0]
	assert.Equal(t, "bitcoin", oldest.CoinID)
	assert.True(t, oldest.CapturedAt.Equal(now.Add(-3*time.Hour)))
	require.NotNil(t, oldest.Volume24h)
	assert.Equal(t, 1.5e9, *oldest.Volume24h)
	require.NotNil(t, oldest.MarketCap)
	assert.Equal(t, 9.8e11, *oldest.MarketCap)
	require.NotNil(t, oldest.PriceChangePct24h)
	assert.Equal(t, -2.4, *oldest.PriceChangePct24h)
	assert.Nil(t, oldest.PriceChange24h)

	assert.Nil(t, history[1].Volume24h)
}

func TestSavePriceSampleStampsZeroTime(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SavePriceSample(ctx, models.PriceSample{CoinID: "bitcoin", Price: 50000}))

	history, err := db.GetPriceHistory(ctx, "bitcoin", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.WithinDuration(t, time.Now().UTC(), history[0].CapturedAt, time.Minute)
}

func TestGetPriceHistoryWindow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.SavePriceSample(ctx, models.PriceSample{CoinID: "bitcoin", Price: 40000, CapturedAt: now.AddDate(0, 0, -40)}))
	require.NoError(t, db.SavePriceSample(ctx, models.PriceSample{CoinID: "bitcoin", Price: 50000, CapturedAt: now.Add(-time.Hour)}))

	within, err := db.GetPriceHistory(ctx, "bitcoin", 30)
	require.NoError(t, err)
	require.Len(t, within, 1)
	assert.Equal(t, 50000.0, within[0].Price)

	wider, err := db.GetPriceHistory(ctx, "bitcoin", 60)
	require.NoError(t, err)
	assert.Len(t, wider, 2)
}

func TestCleanupOldPriceData(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.SavePriceSample(ctx, models.PriceSample{CoinID: "bitcoin", Price: 40000, CapturedAt: now.AddDate(0, 0, -40)}))
	require.NoError(t, db.SavePriceSample(ctx, models.PriceSample{CoinID: "ethereum", Price: 1500, CapturedAt: now.AddDate(0, 0, -35)}))
	require.NoError(t, db.SavePriceSample(ctx, models.PriceSample{CoinID: "bitcoin", Price: 50000, CapturedAt: now.Add(-time.Hour)}))

	deleted, err := db.CleanupOldPriceData(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := db.GetPriceHistory(ctx, "bitcoin", 60)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, 50000.0, remaining[0].Price)

	_, err = db.CleanupOldPriceData(ctx, 0)
	require.Error(t, err)
}
