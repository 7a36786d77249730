package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexjbarnes/bff-proxy/internal/models"
	"github.com/alexjbarnes/bff-proxy/internal/tokenstore"
	"github.com/tidwall/gjson"
)

const defaultTokenType = "Bearer"

// maxTokenLifetime bounds expire_minutes. Larger values would overflow
// time.Duration and are treated as malformed.
const maxTokenLifetime = 365 * 24 * time.Hour

// Credentials is the service account exchanged for every session's token.
// It is not tied to any end user.
type Credentials struct {
	Username string
	Password string
}

// AcquireErrorKind classifies why a token acquisition failed, so callers
// can apply a different retry policy per kind.
type AcquireErrorKind int

const (
	// AcquireHTTP means the token endpoint answered with a non-2xx status.
	AcquireHTTP AcquireErrorKind = iota + 1
	// AcquireMalformed means the endpoint answered 2xx but the body was
	// not JSON or lacked access_token or expire_minutes.
	AcquireMalformed
	// AcquireTransport means no HTTP response was received.
	AcquireTransport
)

func (k AcquireErrorKind) String() string {
	switch k {
	case AcquireHTTP:
		return "http"
	case AcquireMalformed:
		return "malformed_response"
	case AcquireTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// AcquisitionError is returned by Acquirer.Acquire.
type AcquisitionError struct {
	Kind   AcquireErrorKind
	Status int    // set for AcquireHTTP
	Body   string // sanitized response body, set for AcquireHTTP and AcquireMalformed
	Err    error
}

func (e *AcquisitionError) Error() string {
	switch e.Kind {
	case AcquireHTTP:
		return fmt.Sprintf("token endpoint returned status %d: %s", e.Status, e.Body)
	case AcquireMalformed:
		if e.Err != nil {
			return fmt.Sprintf("malformed token response: %v", e.Err)
		}

		return "malformed token response"
	default:
		return fmt.Sprintf("token request failed: %v", e.Err)
	}
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Acquirer exchanges the service credentials for a fresh bearer token
// and records it in the session store.
type Acquirer struct {
	httpClient *http.Client
	tokenURL   string
	creds      Credentials
	store      tokenstore.Store
	logger     *slog.Logger
	now        func() time.Time
}

// NewAcquirer creates an Acquirer posting to tokenURL.
func NewAcquirer(httpClient *http.Client, tokenURL string, creds Credentials, store tokenstore.Store, logger *slog.Logger) *Acquirer {
	if httpClient == nil {
		httpClient = NewHTTPClient(0, true)
	}

	return &Acquirer{
		httpClient: httpClient,
		tokenURL:   tokenURL,
		creds:      creds,
		store:      store,
		logger:     logger.With(slog.String("component", "acquirer")),
		now:        time.Now,
	}
}

// Acquire requests a new token for the session. Any token already stored
// for the session is cleared first, so a failed acquisition leaves the
// session with no token rather than a stale one.
func (a *Acquirer) Acquire(ctx context.Context, sessionID string) (*models.TokenInfo, error) {
	if err := a.store.Clear(sessionID); err != nil {
		return nil, fmt.Errorf("clearing session token: %w", err)
	}

	a.logger.Info("requesting new token", slog.String("endpoint", a.tokenURL))

	ti, err := a.exchange(ctx)
	if err != nil {
		a.logger.Error("token acquisition failed", slog.String("error", err.Error()))
		return nil, err
	}

	if err := a.store.Set(sessionID, *ti); err != nil {
		a.logger.Error("storing session token", slog.String("error", err.Error()))
		return nil, fmt.Errorf("storing session token: %w", err)
	}

	a.logger.Info("token acquired",
		slog.String("token_type", ti.TokenType),
		slog.Time("expires_at", ti.ExpiresAt),
	)

	return ti, nil
}

func (a *Acquirer) exchange(ctx context.Context) (*models.TokenInfo, error) {
	form := url.Values{
		"username": {a.creds.Username},
		"password": {a.creds.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AcquisitionError{Kind: AcquireTransport, Err: fmt.Errorf("creating request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &AcquisitionError{Kind: AcquireTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, &AcquisitionError{Kind: AcquireTransport, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AcquisitionError{
			Kind:   AcquireHTTP,
			Status: resp.StatusCode,
			Body:   sanitizeResponseBody(body),
		}
	}

	return a.parseToken(body)
}

// parseToken reads access_token, expire_minutes and token_type from a
// successful token response.
func (a *Acquirer) parseToken(body []byte) (*models.TokenInfo, error) {
	malformed := func(reason string) error {
		return &AcquisitionError{
			Kind: AcquireMalformed,
			Body: sanitizeResponseBody(body),
			Err:  errors.New(reason),
		}
	}

	if !gjson.ValidBytes(body) {
		return nil, malformed("body is not valid JSON")
	}

	token := gjson.GetBytes(body, "access_token")
	if !token.Exists() {
		return nil, malformed("access_token not found in response")
	}

	if token.Type != gjson.String || token.Str == "" {
		return nil, malformed("access_token is not a non-empty string")
	}

	minutes := gjson.GetBytes(body, "expire_minutes")
	if minutes.Type != gjson.Number {
		return nil, malformed("expire_minutes missing or not a number")
	}

	if math.Abs(minutes.Float()) > maxTokenLifetime.Minutes() {
		return nil, malformed("expire_minutes out of range")
	}

	tokenType := gjson.GetBytes(body, "token_type").String()
	if tokenType == "" {
		tokenType = defaultTokenType
	}

	return &models.TokenInfo{
		AccessToken: token.Str,
		TokenType:   tokenType,
		ExpiresAt:   a.now().Add(time.Duration(minutes.Float() * float64(time.Minute))),
	}, nil
}
