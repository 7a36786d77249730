package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexjbarnes/bff-proxy/internal/server"
	"github.com/alexjbarnes/bff-proxy/internal/session"
	"github.com/alexjbarnes/bff-proxy/internal/tokenstore"
	"github.com/alexjbarnes/bff-proxy/internal/upstream"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	serviceUser     = "svc"
	servicePassword = "svc-secret"
	adminUser       = "admin"
	adminPassword   = "admin-pass"
)

// fakeAPI is an in-memory upstream with a token endpoint and employee
// and product collections. Resource routes require a token it issued.
type fakeAPI struct {
	srv *httptest.Server

	mu        sync.Mutex
	tokens    map[string]bool
	employees map[string]map[string]any
	products  map[string]map[string]any
	nextID    int

	tokenCalls atomic.Int32
	authDown   atomic.Bool
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		tokens:    make(map[string]bool),
		employees: make(map[string]map[string]any),
		products:  make(map[string]map[string]any),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", f.handleToken)
	mux.Handle("/employees/", f.requireToken(f.collection("/employees/", f.employees)))
	mux.Handle("/products/", f.requireToken(f.collection("/products/", f.products)))

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) handleToken(w http.ResponseWriter, r *http.Request) {
	f.tokenCalls.Add(1)

	if f.authDown.Load() || r.PostFormValue("username") != serviceUser || r.PostFormValue("password") != servicePassword {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"invalid credentials"}`)
		return
	}

	f.mu.Lock()
	tok := fmt.Sprintf("tok-%d", len(f.tokens)+1)
	f.tokens[tok] = true
	f.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{"access_token": tok, "expire_minutes": 10, "token_type": "Bearer"})
}

func (f *fakeAPI) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		ok := f.tokens[tok]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"bad token"}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeAPI) collection(prefix string, items map[string]map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		id := strings.TrimPrefix(r.URL.Path, prefix)
		switch {
		case r.Method == http.MethodGet && id == "":
			list := make([]map[string]any, 0, len(items))
			for _, it := range items {
				list = append(list, it)
			}
			json.NewEncoder(w).Encode(list)
		case r.Method == http.MethodPost && id == "":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			f.nextID++
			body["id"] = f.nextID
			items[fmt.Sprint(f.nextID)] = body
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(body)
		case r.Method == http.MethodGet:
			it, ok := items[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"detail":"not found"}`)
				return
			}
			json.NewEncoder(w).Encode(it)
		case r.Method == http.MethodPut:
			if _, ok := items[id]; !ok {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"detail":"not found"}`)
				return
			}
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			items[id] = body
			json.NewEncoder(w).Encode(body)
		case r.Method == http.MethodDelete:
			delete(items, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// harness runs the full proxy stack against a fakeAPI.
type harness struct {
	API   *fakeAPI
	URL   string
	Store tokenstore.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, newFakeAPI(t), tokenstore.NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, api *fakeAPI, store tokenstore.Store) *harness {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	httpClient := upstream.NewHTTPClient(5*time.Second, true)
	acquirer := upstream.NewAcquirer(httpClient, api.srv.URL+"/auth/token",
		upstream.Credentials{Username: serviceUser, Password: servicePassword}, store, logger)
	validator := upstream.NewValidator(store, acquirer, logger)
	forwarder := upstream.NewForwarder(httpClient, validator, store, logger)

	handler := server.NewMux(server.MuxConfig{
		API:               forwarder,
		Store:             store,
		Sessions:          session.NewManager("bff_session", false, time.Hour, logger),
		EmployeeURL:       api.srv.URL + "/employees/",
		ProductURL:        api.srv.URL + "/products/",
		LocalUsername:     adminUser,
		LocalPasswordHash: string(hash),
		LoginRateLimit:    5,
		Logger:            logger,
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &harness{API: api, URL: srv.URL, Store: store}
}

// browser returns a client with its own cookie jar, i.e. its own session.
func browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

type response struct {
	Status int
	Body   any
}

func (r response) Object(t *testing.T) map[string]any {
	t.Helper()
	m, ok := r.Body.(map[string]any)
	require.True(t, ok, "expected JSON object, got %T", r.Body)
	return m
}

func (h *harness) do(t *testing.T, c *http.Client, method, path string, body any) response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, h.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}

	return response{Status: resp.StatusCode, Body: decoded}
}

func newEmployee(name string) map[string]any {
	return map[string]any{
		"nome":      name,
		"matricula": "R-" + name,
		"cpf":       "000.000.000-00",
		"senha":     "pw",
		"grupo":     "vendas",
		"telefone":  "555-0100",
	}
}
