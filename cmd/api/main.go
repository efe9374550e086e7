package main

import (
	"context"
	"crypto/rsa"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ETAnderson/pricetrail/internal/api"
	"github.com/ETAnderson/pricetrail/internal/api/auth"
	"github.com/ETAnderson/pricetrail/internal/catalog"
	"github.com/ETAnderson/pricetrail/internal/config"
	"github.com/ETAnderson/pricetrail/internal/fetch"
	"github.com/ETAnderson/pricetrail/internal/harvest"
	"github.com/ETAnderson/pricetrail/internal/logging"
	"github.com/ETAnderson/pricetrail/internal/migrate"
	"github.com/ETAnderson/pricetrail/internal/pricing"
	"github.com/ETAnderson/pricetrail/internal/runstate"
	"github.com/ETAnderson/pricetrail/internal/state"
)

func main() {
	cfg := config.Load()
	logger := logging.NewStdLogger("api-service ")

	logger.Printf("ENV=%q STATE_BACKEND=%q PORT=%s", cfg.Env, cfg.StateBackend, cfg.Port)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Printf("load timezone %q failed: %v", cfg.Timezone, err)
		os.Exit(1)
	}

	factoryRes, err := state.NewStore(context.Background(), state.FactoryConfig{
		Backend:     cfg.StateBackend,
		FileDir:     cfg.FileDir,
		MySQLDSN:    cfg.MySQLDSN,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		logger.Printf("state store init failed: %v", err)
		os.Exit(1)
	}
	defer factoryRes.Close()

	if cfg.RunMigrations {
		if err := applyMigrations(context.Background(), factoryRes, cfg.MigrationsDir); err != nil {
			logger.Printf("apply migrations failed: %v", err)
			os.Exit(1)
		}
	}

	// Outside dev the ops endpoints are useless without a verification key,
	// so a missing key is fatal there.
	var pub *rsa.PublicKey
	if key, err := auth.LoadRSAPublicKeyFromEnv("JWT_PUBLIC_KEY_PEM"); err == nil {
		pub = key
	} else if cfg.Env != "dev" {
		logger.Printf("load JWT public key failed: %v", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	store := factoryRes.Store

	srv := &api.Server{
		Store: store,
		Orchestrator: &harvest.Orchestrator{
			Discoverer: catalog.Discoverer{
				HTTP:      httpClient,
				IndexURL:  cfg.SitemapIndexURL,
				UserAgent: cfg.UserAgent,
				Log:       logging.Component(logger, "catalog"),
			},
			Fetcher: &fetch.Client{
				HTTP:      httpClient,
				URL:       cfg.ProductAPIURL,
				APIKey:    cfg.ProductAPIKey,
				Region:    cfg.Region,
				Language:  cfg.Language,
				UserAgent: cfg.UserAgent,
				Attempts:  cfg.FetchAttempts,
				RetryBase: cfg.FetchRetryBase,
				Log:       logging.Component(logger, "fetch"),
			},
			Periods:   pricing.NewPeriodStore(store, loc, logger),
			Tracker:   runstate.NewTracker(store, loc, logger),
			Workers:   cfg.Workers,
			Freshness: cfg.Freshness,
			Log:       logger,
		},
		Env:       cfg.Env,
		PublicKey: pub,
		Loc:       loc,
		Workers:   cfg.Workers,
		Log:       logger,
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("starting (env=%s) on %s", cfg.Env, server.Addr)

		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.Printf("server error: %v", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(logger, server)
}

func waitForShutdown(logger interface{ Printf(string, ...any) }, server *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Printf("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = server.Shutdown(ctx)
	logger.Printf("shutdown complete")
}

// applyMigrations runs the backend's migration set; dir holds one
// subdirectory per SQL backend.
func applyMigrations(ctx context.Context, res state.FactoryResult, dir string) error {
	switch {
	case res.DB != nil:
		return migrate.ApplyDir(ctx, res.DB, filepath.Join(dir, "mysql"))
	case res.Pool != nil:
		return migrate.ApplyDirPool(ctx, res.Pool, filepath.Join(dir, "postgres"))
	}
	return nil
}
