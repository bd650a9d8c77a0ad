package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/bidding"
	"github.com/jensholdgaard/player-auction/internal/bot"
	"github.com/jensholdgaard/player-auction/internal/bot/commands"
	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/config"
	"github.com/jensholdgaard/player-auction/internal/health"
	"github.com/jensholdgaard/player-auction/internal/httpapi"
	"github.com/jensholdgaard/player-auction/internal/leader"
	"github.com/jensholdgaard/player-auction/internal/ledger"
	"github.com/jensholdgaard/player-auction/internal/notify"
	"github.com/jensholdgaard/player-auction/internal/notify/redis"
	"github.com/jensholdgaard/player-auction/internal/roster"
	"github.com/jensholdgaard/player-auction/internal/store"
	"github.com/jensholdgaard/player-auction/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/player-auction/internal/store/memory"
	_ "github.com/jensholdgaard/player-auction/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()
	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	checkers := []health.Checker{{Name: "database", Check: repos.Ping}}

	// Pub/sub and bid locks stay in-process unless Redis is configured.
	var (
		broker notify.Broker
		locker notify.Locker
	)
	if cfg.Redis.Enabled() {
		rc, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rc.Close()
		broker = redis.NewBroker(rc)
		locker = redis.NewLocker(rc)
		checkers = append(checkers, health.PingChecker("broker", rc))
		logger.InfoContext(ctx, "connected to redis", slog.String("addr", cfg.Redis.Addr))
	} else {
		broker = notify.NewMemoryBroker()
		locker = notify.NewMemoryLocker(clk)
	}

	session := auction.NewSession(repos.Sessions, broker, logger, tp.TracerProvider)
	if _, err := session.Init(ctx, cfg.Auction); err != nil {
		return fmt.Errorf("initialising auction session: %w", err)
	}
	checkers = append(checkers, health.SessionChecker(func(ctx context.Context) error {
		_, err := session.Get(ctx)
		return err
	}))

	engine, err := auction.NewEngine(repos, session, auction.Policy{AllowSelfRaise: cfg.Auction.AllowSelfRaise}, logger, tp.TracerProvider, tp.MeterProvider)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	// Surface anything a crash left half-done before taking traffic.
	if issues, recErr := engine.Reconcile(ctx); recErr != nil {
		logger.ErrorContext(ctx, "reconciliation failed", slog.Any("error", recErr))
	} else if len(issues) > 0 {
		logger.WarnContext(ctx, "reconciliation found issues", slog.Int("count", len(issues)))
	}

	surface, err := bidding.New(engine,
		ledger.New(repos.Bids, broker, logger, tp.TracerProvider, clk),
		locker,
		bidding.Options{LockTTL: cfg.Auction.BidLockTTL},
		logger, tp.TracerProvider, tp.MeterProvider,
	)
	if err != nil {
		return fmt.Errorf("creating bidding surface: %w", err)
	}
	rosterMgr := roster.NewManager(repos, logger, tp.TracerProvider)

	hub := httpapi.NewHub(surface, logger)
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("starting live feed: %w", err)
	}

	healthHandler := health.NewHandler(clk, checkers...)
	api := httpapi.New(httpapi.Options{
		Engine:     engine,
		Surface:    surface,
		Roster:     rosterMgr,
		Hub:        hub,
		Health:     healthHandler,
		AdminToken: cfg.Server.AdminToken,
		Logger:     logger,
		Tracer:     tp.TracerProvider,
	})
	if cfg.Server.AdminToken == "" {
		logger.WarnContext(ctx, "no admin token configured, admin API disabled")
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(gctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", listenErr)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		healthHandler.SetReady(false)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if cfg.Discord.Enabled {
		handlers := commands.NewHandlers(engine, surface, rosterMgr, cfg.Discord.AdminRoleID, logger, tp.TracerProvider)

		// runBot is the work only the leader should do.
		runBot := func(ctx context.Context) error {
			discordBot, botErr := bot.New(cfg.Discord, handlers, logger)
			if botErr != nil {
				return fmt.Errorf("creating bot: %w", botErr)
			}
			if botErr = discordBot.Start(ctx); botErr != nil {
				return fmt.Errorf("starting bot: %w", botErr)
			}
			logger.InfoContext(ctx, "discord bot is running", slog.String("version", version))

			<-ctx.Done()
			if stopErr := discordBot.Stop(); stopErr != nil {
				logger.Error("bot shutdown error", slog.Any("error", stopErr))
			}
			return nil
		}

		if cfg.LeaderElection.Enabled {
			logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")
			g.Go(func() error {
				return leader.Run(gctx, cfg.LeaderElection, logger,
					func(lctx context.Context) {
						if botErr := runBot(lctx); botErr != nil {
							logger.ErrorContext(lctx, "discord bot failed", slog.Any("error", botErr))
						}
					},
					func() {
						if gctx.Err() == nil {
							logger.Info("lost leadership, shutting down...")
							cancel()
						}
					},
				)
			})
		} else {
			g.Go(func() error { return runBot(gctx) })
		}
	}

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "auctiond is running", slog.String("version", version))

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
