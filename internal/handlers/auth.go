package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	errs "github.com/alexjbarnes/bff-proxy/internal/errors"
	"github.com/alexjbarnes/bff-proxy/internal/session"
	"github.com/alexjbarnes/bff-proxy/internal/tokenstore"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

// localUserPrefix marks a username as a local administrator rather than
// an upstream employee.
const localUserPrefix = "@"

// dummyHash is compared against when no local user is configured so the
// response time does not reveal it.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unused"), bcrypt.MinCost)

// LocalLogin authenticates the single local administrator configured in
// the environment. No upstream call is made.
type LocalLogin struct {
	username []byte
	hash     []byte
	logger   *slog.Logger
}

// NewLocalLogin creates the handler. An empty username disables local
// login; every attempt is then rejected.
func NewLocalLogin(username, passwordHash string, logger *slog.Logger) *LocalLogin {
	return &LocalLogin{
		username: []byte(norm.NFC.String(username)),
		hash:     []byte(passwordHash),
		logger:   logger.With(slog.String("component", "local_login")),
	}
}

func (h *LocalLogin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, ok := readObject(w, r, []string{"username", passwordField})
	if !ok {
		return
	}

	username, _ := data["username"].(string)
	password, _ := data[passwordField].(string)

	if !strings.HasPrefix(username, localUserPrefix) {
		writeError(w, http.StatusBadRequest, "local login username must start with '@'")
		return
	}

	if err := h.verify(strings.TrimPrefix(username, localUserPrefix), password); err != nil {
		h.logger.Warn("local login failed", slog.String("ip", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	h.logger.Info("local login succeeded", slog.String("ip", r.RemoteAddr))
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "local login succeeded",
		"grupo":   "administrador",
	})
}

func (h *LocalLogin) verify(username, password string) error {
	if len(h.username) == 0 || len(h.hash) == 0 {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return errs.ErrInvalidCredentials
	}

	userOK := subtle.ConstantTimeCompare([]byte(norm.NFC.String(username)), h.username) == 1
	passErr := bcrypt.CompareHashAndPassword(h.hash, []byte(password))

	if !userOK || passErr != nil {
		return errs.ErrInvalidCredentials
	}

	return nil
}

// HandleLogout ends the session: its cached upstream token is dropped
// and the browser is told to forget the cookie.
func HandleLogout(store tokenstore.Store, sessions *session.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Clear(session.ID(r.Context())); err != nil {
			logger.Error("clearing session token", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to end session")
			return
		}

		sessions.Expire(w)
		writeJSON(w, http.StatusOK, map[string]string{"message": "session ended"})
	}
}

// HandleHealth reports liveness. It does not contact the upstream.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
