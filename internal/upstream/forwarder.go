package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	errs "github.com/alexjbarnes/bff-proxy/internal/errors"
	"github.com/alexjbarnes/bff-proxy/internal/tokenstore"
)

// Outcome tags a Result.
type Outcome int

const (
	// OutcomeSuccess carries the upstream body and a 1xx-3xx status.
	OutcomeSuccess Outcome = iota
	// OutcomeAuthFailure means no usable token; no upstream call was made.
	OutcomeAuthFailure
	// OutcomeUpstreamError carries an upstream 4xx/5xx status and body.
	OutcomeUpstreamError
	// OutcomeTransportError means the upstream could not be reached.
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthFailure:
		return "auth_failure"
	case OutcomeUpstreamError:
		return "upstream_error"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one authenticated call.
type Result struct {
	Outcome Outcome
	Status  int
	// Body is the decoded upstream JSON. For OutcomeUpstreamError it is the
	// upstream error body when that body is JSON.
	Body    any
	Message string
	// Err is one of the internal/errors sentinels, wrapped, for every
	// outcome but success.
	Err error
}

// Response returns the (body, status) pair handed to route handlers.
// Failures without a JSON body become {"error": message}.
func (r Result) Response() (any, int) {
	if r.Body != nil {
		return r.Body, r.Status
	}

	if r.Outcome == OutcomeSuccess {
		return map[string]any{}, r.Status
	}

	return map[string]any{"error": r.Message}, r.Status
}

// TokenValidator reports whether a session has a usable token.
type TokenValidator interface {
	EnsureValid(ctx context.Context, sessionID string) bool
}

// Forwarder performs upstream calls with the session's bearer token.
type Forwarder struct {
	httpClient *http.Client
	validator  TokenValidator
	store      tokenstore.Store
	logger     *slog.Logger
}

// NewForwarder creates a Forwarder. httpClient should be the same client
// the Acquirer uses so the TLS policy applies to both.
func NewForwarder(httpClient *http.Client, validator TokenValidator, store tokenstore.Store, logger *slog.Logger) *Forwarder {
	if httpClient == nil {
		httpClient = NewHTTPClient(0, true)
	}

	return &Forwarder{
		httpClient: httpClient,
		validator:  validator,
		store:      store,
		logger:     logger.With(slog.String("component", "forwarder")),
	}
}

// MakeAPIRequest performs an authenticated call and returns the body and
// status to relay to the browser. It never panics; an unexpected panic
// in a collaborator is reported as a 500.
func (f *Forwarder) MakeAPIRequest(ctx context.Context, sessionID, method, rawURL string, data any, params url.Values) (body any, status int) {
	defer func() {
		if p := recover(); p != nil {
			f.logger.Error("panic forwarding request",
				slog.String("method", method),
				slog.String("url", rawURL),
				slog.Any("panic", p),
			)

			body = map[string]any{"error": "internal error forwarding request"}
			status = http.StatusInternalServerError
		}
	}()

	return f.Request(ctx, sessionID, method, rawURL, data, params).Response()
}

// Request performs one upstream call. The token is validated (and
// acquired if needed) first; the upstream call itself is not retried.
func (f *Forwarder) Request(ctx context.Context, sessionID, method, rawURL string, data any, params url.Values) Result {
	if !f.validator.EnsureValid(ctx, sessionID) {
		return Result{
			Outcome: OutcomeAuthFailure,
			Status:  http.StatusInternalServerError,
			Message: errs.ErrTokenUnavailable.Error(),
			Err:     errs.ErrTokenUnavailable,
		}
	}

	ti, err := f.store.Get(sessionID)
	if err != nil || ti == nil || ti.AccessToken == "" {
		if err != nil {
			f.logger.Warn("reading session token", slog.String("error", err.Error()))
		}

		return Result{
			Outcome: OutcomeAuthFailure,
			Status:  http.StatusUnauthorized,
			Message: errs.ErrTokenNotFound.Error(),
			Err:     errs.ErrTokenNotFound,
		}
	}

	req, err := f.newRequest(ctx, method, rawURL, data, params)
	if err != nil {
		return f.transportError(method, rawURL, err)
	}

	req.Header.Set("Authorization", "Bearer "+ti.AccessToken)
	req.Header.Set("Accept", "application/json")

	f.logger.Info("forwarding request",
		slog.String("method", req.Method),
		slog.String("url", req.URL.Redacted()),
	)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return f.transportError(method, rawURL, err)
	}
	defer resp.Body.Close()

	respBody, err := readBody(resp)
	if err != nil {
		return f.transportError(method, rawURL, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return f.upstreamError(method, rawURL, resp.StatusCode, respBody)
	}

	return Result{
		Outcome: OutcomeSuccess,
		Status:  resp.StatusCode,
		Body:    decodeSuccessBody(resp.StatusCode, respBody),
	}
}

func (f *Forwarder) newRequest(ctx context.Context, method, rawURL string, data any, params url.Values) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}

		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// decodeSuccessBody decodes 200 and 201 bodies as JSON. Any other
// non-error status, an empty body, or a body that is not JSON yields an
// empty object.
func decodeSuccessBody(status int, body []byte) any {
	if status != http.StatusOK && status != http.StatusCreated {
		return map[string]any{}
	}

	var decoded any
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &decoded) != nil || decoded == nil {
		return map[string]any{}
	}

	return decoded
}

func (f *Forwarder) upstreamError(method, rawURL string, status int, body []byte) Result {
	msg := fmt.Sprintf("HTTP error: %d - %s", status, sanitizeResponseBody(body))

	f.logger.Error("upstream returned error",
		slog.String("method", method),
		slog.String("url", rawURL),
		slog.Int("status", status),
		slog.String("body", sanitizeResponseBody(body)),
	)

	var decoded any
	if json.Unmarshal(body, &decoded) != nil || decoded == nil {
		decoded = map[string]any{"error": msg}
	}

	return Result{
		Outcome: OutcomeUpstreamError,
		Status:  status,
		Body:    decoded,
		Message: msg,
		Err:     fmt.Errorf("%w: status %d", errs.ErrAPIResponse, status),
	}
}

func (f *Forwarder) transportError(method, rawURL string, err error) Result {
	msg := fmt.Sprintf("connection error with upstream API: %v", err)

	f.logger.Error("upstream request failed",
		slog.String("method", method),
		slog.String("url", rawURL),
		slog.String("error", err.Error()),
	)

	return Result{
		Outcome: OutcomeTransportError,
		Status:  http.StatusInternalServerError,
		Message: msg,
		Err:     fmt.Errorf("%w: %w", errs.ErrAPIRequest, err),
	}
}
