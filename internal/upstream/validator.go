package upstream

//go:generate mockgen -destination=mock_acquirer_test.go -package=upstream . TokenAcquirer
//go:generate mockgen -destination=mock_store_test.go -package=upstream github.com/alexjbarnes/bff-proxy/internal/tokenstore Store

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexjbarnes/bff-proxy/internal/models"
	"github.com/alexjbarnes/bff-proxy/internal/tokenstore"
	"golang.org/x/sync/singleflight"
)

// MaxAcquisitionAttempts bounds how many times EnsureValid asks for a new
// token before giving up. Callers that need more retries apply their own
// policy on top.
const MaxAcquisitionAttempts = 2

// TokenAcquirer obtains a fresh token for a session and stores it.
type TokenAcquirer interface {
	Acquire(ctx context.Context, sessionID string) (*models.TokenInfo, error)
}

// Validator decides whether a session holds a usable token and acquires
// one when it does not.
type Validator struct {
	store    tokenstore.Store
	acquirer TokenAcquirer
	logger   *slog.Logger
	now      func() time.Time

	// inflight collapses concurrent acquisitions for the same session.
	inflight singleflight.Group
}

// NewValidator creates a Validator.
func NewValidator(store tokenstore.Store, acquirer TokenAcquirer, logger *slog.Logger) *Validator {
	return &Validator{
		store:    store,
		acquirer: acquirer,
		logger:   logger.With(slog.String("component", "validator")),
		now:      time.Now,
	}
}

// EnsureValid reports whether the session has a token that expires
// strictly after the current time, acquiring a new one when needed.
// At most MaxAcquisitionAttempts acquisitions are made. A freshly
// acquired token only counts if it is itself unexpired.
func (v *Validator) EnsureValid(ctx context.Context, sessionID string) bool {
	for attempt := 1; attempt <= MaxAcquisitionAttempts; attempt++ {
		ti, err := v.store.Get(sessionID)
		if err != nil {
			v.logger.Warn("reading session token", slog.String("error", err.Error()))
		} else if ti.ValidAt(v.now()) {
			return true
		}

		if attempt > 1 && ctx.Err() != nil {
			break
		}

		fresh, err := v.acquire(ctx, sessionID)
		if err != nil {
			v.logger.Warn("acquisition attempt failed",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", MaxAcquisitionAttempts),
				slog.String("error", err.Error()),
			)

			continue
		}

		if fresh.ValidAt(v.now()) {
			return true
		}

		v.logger.Warn("acquired token is already expired",
			slog.Int("attempt", attempt),
			slog.Time("expires_at", fresh.ExpiresAt),
		)
	}

	v.logger.Error("no valid token after retries", slog.Int("attempts", MaxAcquisitionAttempts))

	return false
}

// acquire joins or starts the shared acquisition for sessionID. The
// acquisition runs without the caller's cancellation, since other callers
// may be waiting on it; the HTTP client timeout bounds it. A cancelled
// caller stops waiting and gets its own context error.
func (v *Validator) acquire(ctx context.Context, sessionID string) (*models.TokenInfo, error) {
	detached := context.WithoutCancel(ctx)
	ch := v.inflight.DoChan(sessionID, func() (any, error) {
		return v.acquirer.Acquire(detached, sessionID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		ti, _ := res.Val.(*models.TokenInfo)

		return ti, nil
	}
}
