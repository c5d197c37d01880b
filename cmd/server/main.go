package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	appauth "github.com/jw6ventures/calgrid/internal/auth"
	"github.com/jw6ventures/calgrid/internal/config"
	httpserver "github.com/jw6ventures/calgrid/internal/http"
	"github.com/jw6ventures/calgrid/internal/jobs"
	"github.com/jw6ventures/calgrid/internal/log"
	"github.com/jw6ventures/calgrid/internal/store"
)

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "create-user":
		err = createUser(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("calgrid "+cmd+" failed", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: calgrid [serve|create-user] [OPTIONS]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve        run the HTTP API (default)\n")
	fmt.Fprintf(os.Stderr, "  create-user  add a password account\n")
}

// openStore loads config, connects to Postgres and applies migrations.
func openStore(ctx context.Context) (*config.Config, *pgxpool.Pool, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create db pool: %w", err)
	}
	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, pool, st, nil
}

func serve() error {
	log.Info("starting calgrid server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, pool, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	authService := appauth.NewService(cfg, st.Users, st.Tokens)

	var oidc *appauth.OIDC
	if cfg.OAuthEnabled() {
		oidc, err = appauth.NewOIDC(ctx, cfg, authService)
		if err != nil {
			return fmt.Errorf("initialize oidc: %w", err)
		}
		log.Info("oidc sign-in enabled", "issuer", cfg.OAuth.IssuerURL)
	}

	scheduler, err := jobs.NewScheduler(cfg.Jobs.TokenSweepCron, authService)
	if err != nil {
		return err
	}
	scheduler.Start()

	r, closeRouter := httpserver.NewRouter(cfg, st, authService, oidc)
	defer closeRouter()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error("stopping jobs", err)
	}
	return nil
}
