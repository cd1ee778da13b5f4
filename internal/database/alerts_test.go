package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoalert/internal/models"
)

func TestSaveAndGetAlerts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	first, err := db.SaveAlert(ctx, models.AlertRecord{
		CoinID:       "bitcoin",
		AlertType:    models.DirectionAbove,
		Threshold:    100000,
		CurrentPrice: 100500,
		Message:      "Alert!!! bitcoin is above threshold of $100000.00, current value is $100500.00",
		TriggeredAt:  now.Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	require.Greater(t, first, int64(0))

	second, err := db.SaveAlert(ctx, models.AlertRecord{
		CoinID:       "ethereum",
		AlertType:    models.DirectionBelow,
		Threshold:    1800,
		CurrentPrice: 1750,
		Message:      "Alert!!! ethereum is below threshold of $1800.00, current value is $1750.00",
		TriggeredAt:  now.Add(-1 * time.Hour),
	})
	require.NoError(t, err)
	require.Greater(t, second, first)

	t.Run("all alerts newest first", func(t *testing.T) {
		alerts, err := db.GetAlerts(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, alerts, 2)
		assert.Equal(t, "ethereum", alerts[0].CoinID)
		assert.Equal(t, "bitcoin", alerts[1].CoinID)

		rec := alerts[1]
		assert.Equal(t, first, rec.ID)
		assert.Equal(t, models.DirectionAbove, rec.AlertType)
		assert.Equal(t, 100000.0, rec.Threshold)
		assert.Equal(t, 100500.0, rec.CurrentPrice)
		assert.True(t, rec.TriggeredAt.Equal(now.Add(-2*time.Hour)))
		assert.False(t, rec.Acknowledged)
		assert.False(t, rec.NotificationSent)
	})

	t.Run("filter by coin", func(t *testing.T) {
		alerts, err := db.GetAlerts(ctx, "bitcoin", 0)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, "bitcoin", alerts[0].CoinID)
	})

	t.Run("limit", func(t *testing.T) {
		alerts, err := db.GetAlerts(ctx, "", 1)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, "ethereum", alerts[0].CoinID)
	})
}

func TestGetAlertsOrderWithinSameSecond(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	var ids []int64
	for _, coin := range []string{"bitcoin", "ethereum", "dogecoin"} {
		id, err := db.SaveAlert(ctx, models.AlertRecord{
			CoinID:       coin,
			AlertType:    models.DirectionAbove,
			Threshold:    1,
			CurrentPrice: 2,
			Message:      "msg",
			TriggeredAt:  at,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	alerts, err := db.GetAlerts(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	// Equal timestamps fall back to insertion order, newest insert first.
	assert.Equal(t, ids[2], alerts[0].ID)
	assert.Equal(t, ids[1], alerts[1].ID)
	assert.Equal(t, ids[0], alerts[2].ID)
}

func TestAcknowledgeAlert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.SaveAlert(ctx, models.AlertRecord{
		CoinID:       "bitcoin",
		AlertType:    models.DirectionAbove,
		Threshold:    100000,
		CurrentPrice: 100500,
		Message:      "msg",
	})
	require.NoError(t, err)

	require.NoError(t, db.AcknowledgeAlert(ctx, id))

	alerts, err := db.GetAlerts(ctx, "bitcoin", 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Acknowledged)

	// Acknowledging twice is fine.
	require.NoError(t, db.AcknowledgeAlert(ctx, id))

	err = db.AcknowledgeAlert(ctx, id+999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkAlertNotified(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.SaveAlert(ctx, models.AlertRecord{
		CoinID:       "bitcoin",
		AlertType:    models.DirectionBelow,
		Threshold:    60000,
		CurrentPrice: 59000,
		Message:      "msg",
	})
	require.NoError(t, err)

	require.NoError(t, db.MarkAlertNotified(ctx, id))

	alerts, err := db.GetAlerts(ctx, "bitcoin", 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].NotificationSent)

	err = db.MarkAlertNotified(ctx, id+999)
	require.ErrorIs(t, err, ErrNotFound)
}
