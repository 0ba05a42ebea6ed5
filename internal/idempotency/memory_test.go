package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginOrReplay_FirstSightProceeds(t *testing.T) {
	store := NewMemoryStore(time.Hour)

	fp := Fingerprint("POST", "/api/v1/jobs", nil)
	res, err := store.BeginOrReplay(context.Background(), "key-1", "POST", "/api/v1/jobs", fp)
	require.NoError(t, err)
	require.NotNil(t, res.Token)
	assert.Nil(t, res.Replay)
}

func TestBeginOrReplay_InFlightConflicts(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	fp := Fingerprint("POST", "/api/v1/jobs", nil)
	_, err := store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs", fp)
	require.NoError(t, err)

	_, err = store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs", fp)
	assert.ErrorIs(t, err, ErrDuplicateInFlight)
}

func TestBeginOrReplay_CompletedReplaysVerbatim(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	fp := Fingerprint("POST", "/api/v1/jobs", []byte(`{"job_type":"outline"}`))
	res, err := store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs", fp)
	require.NoError(t, err)

	body := []byte(`{"job_id":"j-1","status":"pending"}`)
	require.NoError(t, store.Complete(ctx, res.Token, 201, body))

	replayed, err := store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs", fp)
	require.NoError(t, err)
	require.NotNil(t, replayed.Replay)
	assert.Nil(t, replayed.Token)
	assert.Equal(t, 201, replayed.Replay.Status)
	assert.Equal(t, body, replayed.Replay.Body)
}

func TestBeginOrReplay_KeyReuseAcrossEndpointsRejected(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	res, err := store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs",
		Fingerprint("POST", "/api/v1/jobs", nil))
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, res.Token, 201, nil))

	_, err = store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/articles/a-1/approve",
		Fingerprint("POST", "/api/v1/articles/a-1/approve", nil))
	assert.ErrorIs(t, err, ErrKeyReused)
}

func TestBeginOrReplay_SameKeyDifferentBodyRejected(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	res, err := store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs",
		Fingerprint("POST", "/api/v1/jobs", []byte(`{"job_type":"outline"}`)))
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, res.Token, 201, nil))

	_, err = store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs",
		Fingerprint("POST", "/api/v1/jobs", []byte(`{"job_type":"draft"}`)))
	assert.ErrorIs(t, err, ErrKeyReused)
}

func TestBeginOrReplay_ExpiredKeyIsFirstSight(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	fp := Fingerprint("POST", "/api/v1/jobs", nil)
	res, err := store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs", fp)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, res.Token, 201, []byte("stale")))

	// Past retention, with no purge run: the stale response must not
	// replay, the key starts over.
	now = now.Add(2 * time.Hour)

	fresh, err := store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs", fp)
	require.NoError(t, err)
	require.NotNil(t, fresh.Token)
	assert.Nil(t, fresh.Replay)
}

func TestPurgeExpired(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	fp := Fingerprint("POST", "/api/v1/jobs", nil)
	res, err := store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs", fp)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, res.Token, 200, []byte("ok")))

	now = now.Add(2 * time.Hour)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	// After expiry the key behaves as first sight again.
	fresh, err := store.BeginOrReplay(ctx, "key-1", "POST", "/api/v1/jobs", fp)
	require.NoError(t, err)
	assert.NotNil(t, fresh.Token)
}
