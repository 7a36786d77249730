// Package tokenstore holds the bearer token cached for each client
// session. A session ID maps to at most one models.TokenInfo; writes
// replace the whole value so token and expiry never diverge.
package tokenstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexjbarnes/bff-proxy/internal/models"
)

// Store is the session token store used by the upstream client.
// Get returns nil with no error when the session has no token.
type Store interface {
	Get(sessionID string) (*models.TokenInfo, error)
	Set(sessionID string, ti models.TokenInfo) error
	Clear(sessionID string) error
}

// Pruner is implemented by stores that can drop expired entries.
type Pruner interface {
	Prune(now time.Time) (int, error)
}

// pruneInterval controls how often expired entries are reaped.
const pruneInterval = 5 * time.Minute

// RunPruner removes expired tokens from p every interval until ctx is
// cancelled. A zero interval uses the default of five minutes.
func RunPruner(ctx context.Context, p Pruner, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = pruneInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			n, err := p.Prune(now)
			if err != nil {
				logger.Warn("pruning expired session tokens", slog.String("error", err.Error()))
				continue
			}

			if n > 0 {
				logger.Debug("pruned expired session tokens", slog.Int("count", n))
			}
		}
	}
}
