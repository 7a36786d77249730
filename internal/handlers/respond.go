// Package handlers implements the browser-facing routes. Handlers
// validate the request, build the upstream URL and relay whatever the
// forwarder returns.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const errNotJSON = "request must be JSON"

// API performs an authenticated upstream call for a session.
type API interface {
	MakeAPIRequest(ctx context.Context, sessionID, method, rawURL string, data any, params url.Values) (any, int)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if status == http.StatusNoContent || status == http.StatusNotModified {
		return
	}

	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// isJSON reports whether the request declares a JSON body.
func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}

	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// decodeObject reads a JSON object body. Numbers are kept as
// json.Number so they are forwarded unchanged.
func decodeObject(r *http.Request) (map[string]any, bool) {
	if !isJSON(r) {
		return nil, false
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		return nil, false
	}

	return body, true
}

// missingFields returns the required keys absent from body, in order.
func missingFields(body map[string]any, required []string) []string {
	var missing []string
	for _, k := range required {
		if _, ok := body[k]; !ok {
			missing = append(missing, k)
		}
	}

	return missing
}

// readObject decodes the body and checks required fields, writing a 400
// and returning false on failure.
func readObject(w http.ResponseWriter, r *http.Request, required []string) (map[string]any, bool) {
	body, ok := decodeObjectOrFail(w, r)
	if !ok || !requireFields(w, body, required) {
		return nil, false
	}

	return body, true
}

func decodeObjectOrFail(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body, ok := decodeObject(r)
	if !ok {
		writeError(w, http.StatusBadRequest, errNotJSON)
		return nil, false
	}

	return body, true
}

func requireFields(w http.ResponseWriter, body map[string]any, required []string) bool {
	if missing := missingFields(body, required); len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
		return false
	}

	return true
}

// requireQuery returns the named query parameter, writing a 400 when it
// is absent or empty.
func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parameter '%s' is required", name))
		return "", false
	}

	return v, true
}

// itemURL joins a collection base URL (ending in "/") and an item ID.
func itemURL(base string, id any) string {
	return base + url.PathEscape(fmt.Sprint(id))
}

func isCreated(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated
}
