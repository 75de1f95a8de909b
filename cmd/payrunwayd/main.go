package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"PayRunway/internal/chain"
	"PayRunway/internal/config"
	"PayRunway/internal/funding"
	"PayRunway/internal/keeper"
	"PayRunway/internal/observability"
	"PayRunway/internal/outbound"
	"PayRunway/internal/persistence"
	"PayRunway/internal/projection"
	"PayRunway/internal/query"
	"PayRunway/internal/server"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "payrunwayd",
		Short: "Storage payment runway service",
		Long:  "Serves runway, funding plan and capacity queries over HTTP and gRPC, and keeps an account funded on a schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", envOrDefault("PAYRUNWAY_CONFIG", "payrunway.yaml"), "path to the YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("config ok: network=%s rpc=%s database=%s nats=%v keeper=%v\n",
				cfg.Network.Name, cfg.Chain.RPCURL, cfg.Database.Driver, cfg.NATS.Enabled, cfg.Keeper.Enabled)
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLoggerWithLevel("payrunwayd", observability.ParseLogLevel(cfg.LogLevel))
	logger.Info().Str("network", cfg.Network.Name).Msg("PayRunway starting")

	params, err := cfg.Params()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()

	// --- Chain ---
	chainClient, err := chain.Dial(ctx, chain.Config{
		Network:               cfg.Network.Name,
		RPCURL:                cfg.Chain.RPCURL,
		PaymentsAddress:       common.HexToAddress(cfg.Chain.PaymentsAddress),
		TokenAddress:          common.HexToAddress(cfg.Chain.TokenAddress),
		StorageServiceAddress: common.HexToAddress(cfg.Chain.StorageServiceAddress),
		PrivateKeyHex:         cfg.PrivateKey(),
		GasLimit:              cfg.Chain.GasLimit,
	}, logger.With().Str("component", "chain").Logger())
	if err != nil {
		return fmt.Errorf("chain: %w", err)
	}
	chainClient.WithMetrics(metrics)
	signer := chainClient.Address()
	readOnly := signer == (common.Address{})
	if readOnly {
		logger.Warn().Msg("no signing key configured, running read-only")
	} else {
		logger.Info().Str("address", signer.Hex()).Msg("signing account loaded")
	}

	// --- Database ---
	var (
		db    *sql.DB
		store interface {
			funding.ExecutionRecorder
			query.History
		} = persistence.NoopStore{}
	)
	if cfg.Database.Driver != "none" {
		dialect, err := persistence.ParseDialect(cfg.Database.Driver)
		if err != nil {
			return err
		}
		db, err = persistence.Open(ctx, dialect, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		files := persistence.EmbeddedMigrations(dialect)
		if cfg.Database.MigrationsDir != "" {
			files = os.DirFS(cfg.Database.MigrationsDir)
		}
		if err := persistence.NewMigrator(db, dialect, files, logger).Up(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		store = persistence.NewExecutionStore(db, dialect)
		logger.Info().Str("driver", string(dialect)).Msg("execution history enabled")
	}

	// --- NATS ---
	var nc *nats.Conn
	executor := funding.NewExecutor(params, chainClient, chainClient, logger.With().Str("component", "executor").Logger()).
		WithMetrics(metrics)
	if cfg.NATS.Enabled {
		var js jetstream.JetStream
		nc, js, err = outbound.Connect(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		if err := outbound.EnsureStream(ctx, js, cfg.NATS.StreamMaxAge); err != nil {
			return err
		}
		executor.WithPublisher(outbound.NewPublisher(js, logger))

		// with a stream, history is written by the projector
		if db != nil {
			projector := projection.NewHistoryProjector(store, logger.With().Str("component", "projector").Logger())
			if err := projector.Start(ctx, js, cfg.NATS.ProjectorDurable); err != nil {
				return err
			}
			defer projector.Stop()
		}
	} else {
		executor.WithRecorder(store)
	}

	// --- Query service ---
	ceiling, err := cfg.DepositCeiling()
	if err != nil {
		return err
	}
	var exec *funding.Executor
	if !readOnly {
		exec = executor
	}
	qs := query.NewQueryService(params, cfg.Network.Name, chainClient, exec, store).
		WithPlanOptions(funding.PlanOptions{DepositCeiling: ceiling}).
		WithReplayCache(query.NewReplayCache(cfg.Server.IdempotencyKeys)).
		WithMetrics(metrics)
	if !readOnly {
		qs.WithOwner(signer)
	}

	// --- Servers ---
	handler, err := server.NewHTTPHandler(server.HTTPDeps{
		Query:    qs,
		Health:   healthChecker,
		Gatherer: prometheus.DefaultGatherer,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	httpServer := server.NewHTTPServer(cfg.Server.HTTPAddr, handler, logger)
	grpcServer := server.NewGRPCServer(cfg.Server.GRPCAddr, qs, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpServer.Start(gctx) })
	g.Go(func() error { return grpcServer.Start(gctx) })
	g.Go(func() error {
		probeDependencies(gctx, healthChecker, chainClient, db, nc, logger)
		return nil
	})

	// --- Keeper ---
	if cfg.Keeper.Enabled {
		if readOnly {
			return errors.New("keeper enabled but no signing key configured")
		}
		opts, err := cfg.KeeperOptions()
		if err != nil {
			return err
		}
		k, err := keeper.New(keeper.Job{
			Schedule: cfg.Keeper.Schedule,
			Address:  common.HexToAddress(cfg.Keeper.Address),
			Options:  opts,
			Timeout:  cfg.Keeper.Timeout,
		}, qs, executor, logger.With().Str("component", "keeper").Logger())
		if err != nil {
			return err
		}
		k.WithMetrics(metrics)
		g.Go(func() error { return k.Start(gctx) })
	}

	healthChecker.SetReady(true)
	logger.Info().
		Str("http", cfg.Server.HTTPAddr).
		Str("grpc", cfg.Server.GRPCAddr).
		Bool("keeper", cfg.Keeper.Enabled).
		Msg("PayRunway ready")

	err = g.Wait()
	healthChecker.SetReady(false)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("shutdown with error")
		return err
	}
	logger.Info().Msg("PayRunway stopped")
	return nil
}

// probeDependencies refreshes readiness for the RPC endpoint, the database
// and NATS until ctx is done.
func probeDependencies(ctx context.Context, hc *observability.HealthChecker, cc *chain.Client, db *sql.DB, nc *nats.Conn, logger zerolog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := cc.Ping(pctx); err != nil {
			logger.Warn().Err(err).Msg("rpc probe failed")
			hc.SetDependency("rpc", false)
		} else {
			hc.SetDependency("rpc", true)
		}
		if db != nil {
			hc.SetDependency("database", db.PingContext(pctx) == nil)
		}
		if nc != nil {
			hc.SetDependency("nats", nc.IsConnected())
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
