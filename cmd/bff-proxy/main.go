package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/bff-proxy/internal/config"
	"github.com/alexjbarnes/bff-proxy/internal/logging"
	"github.com/alexjbarnes/bff-proxy/internal/server"
	"github.com/alexjbarnes/bff-proxy/internal/session"
	"github.com/alexjbarnes/bff-proxy/internal/tokenstore"
	"github.com/alexjbarnes/bff-proxy/internal/upstream"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	// Handle hash-password subcommand before config loading.
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// hashPassword reads one line from in and writes its bcrypt hash, for
// use as LOCAL_PASSWORD_HASH.
func hashPassword(in io.Reader, out io.Writer) error {
	fmt.Fprint(os.Stderr, "Enter password: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return errors.New("no input")
	}

	hash, err := bcrypt.GenerateFromPassword(scanner.Bytes(), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	fmt.Fprintln(out, string(hash))

	return nil
}

// sessionStore is a token store that can also reap expired entries.
type sessionStore interface {
	tokenstore.Store
	tokenstore.Pruner
}

func openStore(cfg *config.Config, logger *slog.Logger) (sessionStore, func(), error) {
	if cfg.SessionStore != config.StoreBolt {
		return tokenstore.NewMemoryStore(), func() {}, nil
	}

	logger.Info("opening session database", slog.String("path", cfg.SessionDBPath))
	bs, err := tokenstore.OpenBolt(cfg.SessionDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session database: %w", err)
	}

	return bs, func() {
		if err := bs.Close(); err != nil {
			logger.Warn("closing session database", slog.String("error", err.Error()))
		}
	}, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("bff-proxy starting",
		slog.String("version", Version),
		slog.String("store", cfg.SessionStore),
		slog.Bool("ssl_verify", cfg.SSLVerify),
		slog.Bool("local_login", cfg.LocalLoginEnabled()),
	)

	if !cfg.SSLVerify {
		logger.Warn("upstream TLS certificate verification is disabled")
	}

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	httpClient := upstream.NewHTTPClient(cfg.UpstreamTimeout, cfg.SSLVerify)
	acquirer := upstream.NewAcquirer(httpClient, cfg.TokenEndpoint, upstream.Credentials{
		Username: cfg.TokenUsername,
		Password: cfg.TokenPassword,
	}, store, logger)
	validator := upstream.NewValidator(store, acquirer, logger)
	forwarder := upstream.NewForwarder(httpClient, validator, store, logger)

	sessions := session.NewManager(cfg.SessionCookieName, cfg.SessionCookieSecure, cfg.SessionTTL, logger)

	handler := server.NewMux(server.MuxConfig{
		API:                forwarder,
		Store:              store,
		Sessions:           sessions,
		EmployeeURL:        cfg.EmployeeEndpoint,
		ProductURL:         cfg.ProductEndpoint,
		LocalUsername:      cfg.LocalUsername,
		LocalPasswordHash:  cfg.LocalPasswordHash,
		LoginRateLimit:     cfg.LoginRateLimit,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Upstream calls may take up to UPSTREAM_TIMEOUT per token attempt.
		WriteTimeout: 3*cfg.UpstreamTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tokenstore.RunPruner(gctx, store, 0, logger.With(slog.String("component", "pruner")))
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	return g.Wait()
}
