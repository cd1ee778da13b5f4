package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGetWatchlist(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "ethereum", "Ethereum", nil, fptr(1800)))
	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), fptr(60000)))

	entries, err := db.GetWatchlist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Ordered by display name.
	assert.Equal(t, "bitcoin", entries[0].CoinID)
	assert.Equal(t, "ethereum", entries[1].CoinID)

	btc := entries[0]
	assert.Equal(t, "Bitcoin", btc.CoinName)
	require.NotNil(t, btc.ThresholdAbove)
	assert.Equal(t, 100000.0, *btc.ThresholdAbove)
	require.NotNil(t, btc.ThresholdBelow)
	assert.Equal(t, 60000.0, *btc.ThresholdBelow)
	assert.True(t, btc.Enabled)
	assert.False(t, btc.CreatedAt.IsZero())
	assert.False(t, btc.UpdatedAt.IsZero())

	eth := entries[1]
	assert.Nil(t, eth.ThresholdAbove)
	require.NotNil(t, eth.ThresholdBelow)
	assert.Equal(t, 1800.0, *eth.ThresholdBelow)
}

func TestAddToWatchlistUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), nil))

	first, err := db.GetWatchlistEntry(ctx, "bitcoin")
	require.NoError(t, err)

	// Disable, then re-add with new thresholds.
	require.NoError(t, db.SetEnabled(ctx, "bitcoin", false))
	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "BTC", fptr(110000), fptr(50000)))

	second, err := db.GetWatchlistEntry(ctx, "bitcoin")
	require.NoError(t, err)

	// Same row: id and created_at survive the upsert.
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))

	// The new call's values win and the entry is live again.
	assert.Equal(t, "BTC", second.CoinName)
	require.NotNil(t, second.ThresholdAbove)
	assert.Equal(t, 110000.0, *second.ThresholdAbove)
	require.NotNil(t, second.ThresholdBelow)
	assert.Equal(t, 50000.0, *second.ThresholdBelow)
	assert.True(t, second.Enabled)
}

func TestRemoveFromWatchlist(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), nil))
	require.NoError(t, db.RemoveFromWatchlist(ctx, "bitcoin"))

	entries, err := db.GetWatchlist(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = db.RemoveFromWatchlist(ctx, "bitcoin")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateThresholds(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), fptr(60000)))

	t.Run("partial update leaves the other threshold alone", func(t *testing.T) {
		require.NoError(t, db.UpdateThresholds(ctx, "bitcoin", fptr(120000), nil))

		entry, err := db.GetWatchlistEntry(ctx, "bitcoin")
		require.NoError(t, err)
		assert.Equal(t, 120000.0, *entry.ThresholdAbove)
		assert.Equal(t, 60000.0, *entry.ThresholdBelow)
	})

	t.Run("nothing to set", func(t *testing.T) {
		err := db.UpdateThresholds(ctx, "bitcoin", nil, nil)
		require.ErrorIs(t, err, ErrNoThresholds)
	})

	t.Run("unknown coin", func(t *testing.T) {
		err := db.UpdateThresholds(ctx, "dogecoin", fptr(1), nil)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSetEnabled(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddToWatchlist(ctx, "bitcoin", "Bitcoin", fptr(100000), nil))
	require.NoError(t, db.SetEnabled(ctx, "bitcoin", false))

	// Disabled entries drop out of the poll view but not out of the table.
	enabled, err := db.GetWatchlist(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	all, err := db.GetAllWatchlistEntries(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Enabled)
	require.NotNil(t, all[0].ThresholdAbove)
	assert.Equal(t, 100000.0, *all[0].ThresholdAbove)

	entry, err := db.GetWatchlistEntry(ctx, "bitcoin")
	require.NoError(t, err)
	assert.False(t, entry.Enabled)

	require.NoError(t, db.SetEnabled(ctx, "bitcoin", true))
	enabled, err = db.GetWatchlist(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 1)

	err = db.SetEnabled(ctx, "dogecoin", true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetWatchlistEntryNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetWatchlistEntry(context.Background(), "dogecoin")
	require.ErrorIs(t, err, ErrNotFound)
}
