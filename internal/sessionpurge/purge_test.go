package sessionpurge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/smartops/authd/internal/models"
	memorystore "github.com/smartops/authd/internal/store/memory"
)

// recordingStore counts how many sessions the purger reclaims.
type recordingStore struct {
	*memorystore.SessionStore
	purged atomic.Int64
}

func (r *recordingStore) DeleteExpired(ctx context.Context) (int, error) {
	n, err := r.SessionStore.DeleteExpired(ctx)
	r.purged.Add(int64(n))
	return n, err
}

func TestRunPurgesExpiredSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := &recordingStore{SessionStore: memorystore.NewSessionStore()}
	userID := uuid.New()

	now := time.Now()
	expired := &models.Session{
		SessionID:    uuid.New(),
		UserID:       userID,
		IPAddress:    "203.0.113.10",
		UserAgent:    "test-agent/1.0",
		CreatedAt:    now.Add(-time.Hour),
		ExpiresAt:    now.Add(-30 * time.Minute),
		LastActivity: now.Add(-time.Hour),
	}
	live := &models.Session{
		SessionID:    uuid.New(),
		UserID:       userID,
		IPAddress:    "203.0.113.10",
		UserAgent:    "test-agent/1.0",
		CreatedAt:    now,
		ExpiresAt:    now.Add(30 * time.Minute),
		LastActivity: now,
	}
	require.NoError(t, sessions.Create(ctx, expired))
	require.NoError(t, sessions.Create(ctx, live))

	purger := New(sessions, 10*time.Millisecond)
	go purger.Run(ctx)

	require.Eventually(t, func() bool {
		return sessions.purged.Load() == 1
	}, time.Second, 10*time.Millisecond)

	// the live session survives the purge
	_, err := sessions.Find(ctx, live.SessionID, userID)
	require.NoError(t, err)
}

func TestNewDefaultsInterval(t *testing.T) {
	p := New(memorystore.NewSessionStore(), 0)
	require.Equal(t, DefaultInterval, p.interval)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	purger := New(memorystore.NewSessionStore(), 10*time.Millisecond)
	go func() {
		purger.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purger did not stop after context cancellation")
	}
}
