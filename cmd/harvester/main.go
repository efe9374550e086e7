package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

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
	app := &cli.App{
		Name:  "harvester",
		Usage: "daily grocery price harvesting",
		Commands: []*cli.Command{
			runCommand(),
			daemonCommand(),
			migrateHistoryCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "execute one harvesting pass and exit",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "item", Usage: "harvest only this item id (repeatable)"},
			&cli.BoolFlag{Name: "force", Usage: "restart today's run state before the pass"},
			&cli.IntFlag{Name: "workers", Usage: "override HARVEST_WORKERS"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := env.Orchestrator.RunPass(ctx, harvest.PassOptions{
				Items:   c.StringSlice("item"),
				Force:   c.Bool("force"),
				Workers: c.Int("workers"),
			})
			if err != nil {
				return err
			}

			env.Logger.Printf("run %s (%s) finished: phase=%s processed=%d/%d errors=%d",
				res.RunID, res.Date, res.Phase, res.Processed, res.Population, res.Errored)
			return nil
		},
	}
}

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "run forever, harvesting once per day",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "at", Usage: "daily trigger time HH:MM, overrides HARVEST_DAILY_AT"},
			&cli.IntFlag{Name: "workers", Usage: "override HARVEST_WORKERS"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			dailyAt := env.Config.DailyAt
			if at := c.String("at"); at != "" {
				dailyAt = at
			}
			workers := env.Config.Workers
			if w := c.Int("workers"); w > 0 {
				workers = w
			}

			d := &harvest.Daemon{
				Orchestrator: env.Orchestrator,
				Tracker:      env.Tracker,
				DailyAt:      dailyAt,
				Loc:          env.Loc,
				Workers:      workers,
				Log:          env.Logger,
			}

			env.Logger.Printf("daemon starting (env=%s daily_at=%s tz=%s)", env.Config.Env, dailyAt, env.Config.Timezone)

			if err := d.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			env.Logger.Printf("shutdown complete")
			return nil
		},
	}
}

func migrateHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate-history",
		Usage: "fold flat legacy price history into channel periods",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "report what would change without writing"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			n, err := pricing.MigrateLegacyHistory(ctx, env.Store, env.Loc, c.Bool("dry-run"), env.Logger)
			if err != nil {
				return err
			}

			if c.Bool("dry-run") {
				env.Logger.Printf("dry run: %d products would be migrated", n)
			} else {
				env.Logger.Printf("migrated %d products", n)
			}
			return nil
		},
	}
}

// env bundles everything a subcommand needs, assembled once from the
// process environment.
type env struct {
	Config       config.Config
	Logger       *log.Logger
	Loc          *time.Location
	Store        state.Store
	Tracker      *runstate.Tracker
	Orchestrator *harvest.Orchestrator

	factory state.FactoryResult
}

func (e *env) Close() {
	e.factory.Close()
}

func newEnv(ctx context.Context) (*env, error) {
	cfg := config.Load()
	logger := logging.NewStdLogger("harvester ")

	logger.Printf("ENV=%q STATE_BACKEND=%q workers=%d tz=%s",
		cfg.Env, cfg.StateBackend, cfg.Workers, cfg.Timezone)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	factoryRes, err := state.NewStore(ctx, state.FactoryConfig{
		Backend:     cfg.StateBackend,
		FileDir:     cfg.FileDir,
		MySQLDSN:    cfg.MySQLDSN,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("state store init: %w", err)
	}

	if cfg.RunMigrations {
		if err := applyMigrations(ctx, factoryRes, cfg.MigrationsDir); err != nil {
			factoryRes.Close()
			return nil, err
		}
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	tracker := runstate.NewTracker(factoryRes.Store, loc, logger)

	orch := &harvest.Orchestrator{
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
		Periods:   pricing.NewPeriodStore(factoryRes.Store, loc, logger),
		Tracker:   tracker,
		Workers:   cfg.Workers,
		Freshness: cfg.Freshness,
		Log:       logger,
	}

	return &env{
		Config:       cfg,
		Logger:       logger,
		Loc:          loc,
		Store:        factoryRes.Store,
		Tracker:      tracker,
		Orchestrator: orch,
		factory:      factoryRes,
	}, nil
}

// applyMigrations runs the backend's migration set; dir holds one
// subdirectory per SQL backend.
func applyMigrations(ctx context.Context, res state.FactoryResult, dir string) error {
	switch {
	case res.DB != nil:
		if err := migrate.ApplyDir(ctx, res.DB, filepath.Join(dir, "mysql")); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	case res.Pool != nil:
		if err := migrate.ApplyDirPool(ctx, res.Pool, filepath.Join(dir, "postgres")); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}
