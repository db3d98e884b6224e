// Package sessionpurge removes expired session records in the background.
// The session store already treats expired records as absent on read; the
// purger reclaims the storage.
package sessionpurge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/smartops/authd/internal/store"
	"github.com/smartops/authd/internal/telemetry"
)

// DefaultInterval is how often the purge job runs.
const DefaultInterval = time.Minute

// Purger periodically deletes expired sessions.
type Purger struct {
	sessions store.SessionStore
	interval time.Duration
}

// New returns a Purger. An interval of 0 uses DefaultInterval.
func New(sessions store.SessionStore, interval time.Duration) *Purger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Purger{sessions: sessions, interval: interval}
}

// Run purges on a ticker until the context is canceled.
func (p *Purger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := p.sessions.DeleteExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Session purge failed")
				continue
			}
			if count > 0 {
				telemetry.GetMetrics().SessionsPurgedTotal.Add(ctx, int64(count))
			}
		}
	}
}
