package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortgage-rate-alerts/internal/config"
)

// Runs against a real database when RATEALERTS_TEST_DSN is set.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("RATEALERTS_TEST_DSN")
	if dsn == "" {
		t.Skip("RATEALERTS_TEST_DSN not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	store := NewStore(pool)
	t.Cleanup(store.Close)

	_, err = store.Migrate(ctx)
	require.NoError(t, err)
	return store
}

func TestStoreIdempotencyKeyUniqueness(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	key := uuid.NewString()
	email := uuid.NewString() + "@example.com"

	alert := newAlert(uuid.NewString(), email, time.Now().UTC())
	alert.IdempotencyKey = &key
	created, err := store.CreateAlert(ctx, alert)
	require.NoError(t, err)
	assert.True(t, created.TargetRate.Equal(decimal.RequireFromString("6.25")))

	dup := newAlert(uuid.NewString(), email, time.Now().UTC())
	dup.IdempotencyKey = &key
	_, err = store.CreateAlert(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateIdempotencyKey)

	found, err := store.FindByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestStoreMarkTriggeredTransaction(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	alert, err := store.CreateAlert(ctx, newAlert(uuid.NewString(), uuid.NewString()+"@example.com", time.Now().UTC()))
	require.NoError(t, err)

	trigger := Trigger{
		AlertID:        alert.ID,
		NotificationID: uuid.NewString(),
		CurrentRate:    decimal.RequireFromString("6.1255"),
		Message:        "triggered",
		At:             time.Now().UTC(),
	}
	updated, err := store.MarkTriggered(ctx, trigger)
	require.NoError(t, err)
	assert.Equal(t, StatusTriggered, updated.Status)
	assert.Equal(t, 1, updated.NotificationsSent)

	trigger.NotificationID = uuid.NewString()
	_, err = store.MarkTriggered(ctx, trigger)
	assert.ErrorIs(t, err, ErrNotActive)

	notes, err := store.ListNotifications(ctx, alert.ID, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].CurrentRate.Equal(decimal.RequireFromString("6.1255")), "got %s", notes[0].CurrentRate)
}

func TestStoreReTriggerKeepsFirstTriggeredAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	first := time.Now().UTC().Truncate(time.Second)

	alert, err := store.CreateAlert(ctx, newAlert(uuid.NewString(), uuid.NewString()+"@example.com", first.Add(-time.Hour)))
	require.NoError(t, err)

	_, err = store.MarkTriggered(ctx, Trigger{AlertID: alert.ID, NotificationID: uuid.NewString(), CurrentRate: decimal.RequireFromString("6"), Message: "first", At: first})
	require.NoError(t, err)

	active := StatusActive
	_, err = store.UpdateAlert(ctx, alert.ID, AlertPatch{Status: &active}, first.Add(time.Minute))
	require.NoError(t, err)

	again, err := store.MarkTriggered(ctx, Trigger{AlertID: alert.ID, NotificationID: uuid.NewString(), CurrentRate: decimal.RequireFromString("5.9"), Message: "second", At: first.Add(time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, again.TriggeredAt)
	assert.True(t, again.TriggeredAt.Equal(first))
	assert.Equal(t, 2, again.NotificationsSent)
}
