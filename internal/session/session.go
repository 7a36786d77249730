// Package session identifies browser sessions with an opaque cookie.
// The session ID is the key into the token store; it carries no user
// data of its own.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey int

const ctxSessionID contextKey = iota

// ID returns the session ID from the context, or "".
func ID(ctx context.Context) string {
	v, _ := ctx.Value(ctxSessionID).(string)
	return v
}

// WithID returns a copy of ctx carrying the session ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxSessionID, id)
}

// Manager issues and reads the session cookie.
type Manager struct {
	cookieName string
	secure     bool
	ttl        time.Duration
	logger     *slog.Logger
	newID      func() string
}

// NewManager creates a Manager. ttl bounds the cookie lifetime.
func NewManager(cookieName string, secure bool, ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		cookieName: cookieName,
		secure:     secure,
		ttl:        ttl,
		logger:     logger.With(slog.String("component", "session")),
		newID:      uuid.NewString,
	}
}

// Middleware attaches the session ID to the request context, issuing a
// new cookie when the request has none or carries one that is not a
// UUID.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := m.fromRequest(r)
		if id == "" {
			id = m.newID()
			http.SetCookie(w, m.cookie(id, int(m.ttl.Seconds())))
			m.logger.Debug("issued session", slog.String("path", r.URL.Path))
		}

		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}

// Expire instructs the browser to drop the session cookie.
func (m *Manager) Expire(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie("", -1))
}

func (m *Manager) fromRequest(r *http.Request) string {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return ""
	}

	if _, err := uuid.Parse(c.Value); err != nil {
		m.logger.Debug("discarding malformed session cookie")
		return ""
	}

	return c.Value
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
