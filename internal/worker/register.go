package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hpcbench/fleet/internal/obslog"
	"github.com/hpcbench/fleet/internal/wire"
)

// RegisterWithBackoff posts a registration request to the coordinator,
// retrying with exponential backoff up to maxRetries times. backoffBase is
// the first sleep; each subsequent attempt doubles it.
func RegisterWithBackoff(ctx context.Context, coordinatorAddr string, req wire.RegisterRequest, maxRetries int, backoffBase time.Duration) error {
	log := obslog.WithComponent("register")

	var lastErr error
	delay := backoffBase
	for attempt := 1; attempt <= maxRetries; attempt++ {
		var info wire.WorkerInfo
		lastErr = wire.PostJSON(ctx, coordinatorAddr+"/register", req, &info)
		if lastErr == nil {
			log.Info().Str("coordinator", coordinatorAddr).Msg("registered with coordinator")
			return nil
		}

		log.Warn().Int("attempt", attempt).Err(lastErr).Msg("registration attempt failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("worker: registration failed after %d attempts: %w", maxRetries, lastErr)
}
