// Package server wires the route handlers into an http.Handler.
package server

import (
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/bff-proxy/internal/handlers"
	"github.com/alexjbarnes/bff-proxy/internal/session"
	"github.com/alexjbarnes/bff-proxy/internal/tokenstore"
)

// MuxConfig holds dependencies for building the HTTP handler.
type MuxConfig struct {
	API         handlers.API
	Store       tokenstore.Store
	Sessions    *session.Manager
	EmployeeURL string
	ProductURL  string

	LocalUsername     string
	LocalPasswordHash string
	// LoginRateLimit is local login attempts per client IP per minute.
	LoginRateLimit int

	CORSAllowedOrigins []string
	Logger             *slog.Logger
}

// NewMux builds the handler: health outside the session layer, every
// /api/ route inside it, and recovery, request logging and CORS around
// everything.
func NewMux(cfg MuxConfig) http.Handler {
	employee := handlers.NewEmployee(cfg.API, cfg.EmployeeURL, cfg.Logger)
	product := handlers.NewProduct(cfg.API, cfg.ProductURL)
	localLogin := handlers.NewLocalLogin(cfg.LocalUsername, cfg.LocalPasswordHash, cfg.Logger)
	limiter := newLoginLimiter(cfg.LoginRateLimit, cfg.Logger)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/funcionario/all", employee.List)
	api.HandleFunc("GET /api/funcionario/one", employee.Get)
	api.HandleFunc("GET /api/funcionario/cpf", employee.ByCPF)
	api.HandleFunc("POST /api/funcionario/{$}", employee.Create)
	api.HandleFunc("PUT /api/funcionario/{$}", employee.Update)
	api.HandleFunc("DELETE /api/funcionario/{$}", employee.Delete)
	api.HandleFunc("POST /api/funcionario/login", employee.Login)
	api.Handle("POST /api/funcionario/login_local", limiter.Middleware(localLogin))

	api.HandleFunc("GET /api/produto/all", product.List)
	api.HandleFunc("GET /api/produto/one", product.Get)
	api.HandleFunc("POST /api/produto/{$}", product.Create)
	api.HandleFunc("PUT /api/produto/{$}", product.Update)
	api.HandleFunc("DELETE /api/produto/{$}", product.Delete)

	api.HandleFunc("POST /api/session/logout", handlers.HandleLogout(cfg.Store, cfg.Sessions, cfg.Logger))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handlers.HandleHealth)
	mux.Handle("/api/", cfg.Sessions.Middleware(api))

	var h http.Handler = mux
	h = corsMiddleware(cfg.CORSAllowedOrigins)(h)
	h = loggingMiddleware(cfg.Logger)(h)
	h = recoverMiddleware(cfg.Logger)(h)

	return h
}
