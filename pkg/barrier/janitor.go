package barrier

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically drops barriers that stopped receiving arrivals. It blocks until
// ctx is done.
func Janitor(ctx context.Context, store Store, interval, maxAge time.Duration, logger *slog.Logger) {
	logger = logger.With("module", "barrier-janitor")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupExpired(ctx, maxAge)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to clean up barriers", "error", err)

				continue
			}

			if removed > 0 {
				logger.InfoContext(ctx, "Removed expired barriers", "count", removed)
			}
		}
	}
}
