// Package upstream talks to the upstream REST API on behalf of browser
// sessions. It acquires a bearer token per session with the service
// account credentials, keeps it in a tokenstore.Store, and forwards
// resource calls with that token attached.
package upstream

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// defaultTimeout applies when NewHTTPClient is given a zero timeout.
	defaultTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads. Product payloads carry
	// base64 photos, so this is larger than a plain JSON API would need.
	maxResponseBytes = 16 * 1024 * 1024

	// maxLoggedBodyBytes bounds upstream bodies copied into logs and
	// error messages.
	maxLoggedBodyBytes = 256
)

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so the Authorization header is
// never replayed to a third-party domain.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewHTTPClient returns the client used for both token acquisition and
// forwarded calls. When sslVerify is false, certificate verification is
// disabled for every upstream call.
func NewHTTPClient(timeout time.Duration, sslVerify bool) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !sslVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via API_SSL_VERIFY=false
	}

	return &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: sameHostRedirectPolicy,
	}
}

// readBody reads at most maxResponseBytes from the response body.
func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	if len(body) > maxLoggedBodyBytes {
		body = body[:maxLoggedBodyBytes]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
