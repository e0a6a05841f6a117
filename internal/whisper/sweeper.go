package whisper

import (
	"context"
	"time"

	"github.com/org/whisper/internal/storage"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically purges expired whispers so that records no reader ever
// fetches still get removed. Lazy deletion on fetch remains the primary path;
// the sweep only bounds storage growth.
type Sweeper struct {
	backend  storage.Backend
	interval time.Duration
}

// NewSweeper creates a Sweeper that runs every interval.
func NewSweeper(backend storage.Backend, interval time.Duration) *Sweeper {
	return &Sweeper{backend: backend, interval: interval}
}

// Run blocks, sweeping on each tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := s.backend.DeleteExpiredWhispers(ctx, time.Now().UTC())
			if err != nil {
				log.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			if purged > 0 {
				log.Info().Int64("purged", purged).Msg("expired whispers purged")
			}
		}
	}
}
