package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/adapters/onchain"
	"github.com/alejandrodnm/polycopy/internal/adapters/polymarket"
	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/engine"
	"github.com/alejandrodnm/polycopy/internal/events"
	"github.com/alejandrodnm/polycopy/internal/queue"
	"github.com/alejandrodnm/polycopy/internal/reconcile"
	"github.com/alejandrodnm/polycopy/internal/strategy"
	"github.com/alejandrodnm/polycopy/internal/tracker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)
	log := slog.Default()

	if cfg.PrivateKey == "" {
		slog.Error("POLYMARKET_PRIVATE_KEY is required to place orders")
		os.Exit(1)
	}
	if cfg.Chain.RPCURL == "" {
		slog.Error("POLYGON_RPC_URL is required for balance checks")
		os.Exit(1)
	}

	slog.Info("polycopy starting",
		"config", *configPath,
		"wallets", len(cfg.TrackedWallets),
		"poll_interval", cfg.PollInterval(),
		"notional_usdc", cfg.Engine.NotionalUSDC,
	)

	store, err := storage.NewStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.DataBase, cfg.API.GammaBase)
	auth, err := polymarket.NewAuthClient(client, cfg.PrivateKey)
	if err != nil {
		slog.Error("failed to build auth client", "err", err)
		os.Exit(1)
	}
	executor := polymarket.NewTradingClient(auth)

	balances, err := onchain.NewBalanceReader(cfg.Chain.RPCURL)
	if err != nil {
		slog.Error("failed to connect to polygon rpc", "err", err)
		os.Exit(1)
	}
	defer balances.Close()

	bus := events.NewBus()

	account := engine.NewAccountValue(log, balances, client)
	post := engine.NewPostTracking(log, store.Ledgers())
	eng := engine.New(log, engine.Config{
		NotionalUSDC: cfg.Engine.NotionalUSDC,
		Strategy: strategy.Settings{
			MaxPositionsPerLedger:   cfg.Strategy.MaxPositionsPerLedger,
			MaxActiveLedgers:        cfg.Strategy.MaxActiveLedgers,
			AssetMinPositionShares:  cfg.Strategy.AssetMinPositionShares,
			AssetMinPositionPercent: cfg.Strategy.AssetMinPositionPercent,
			CloseTotalThresholdPct:  cfg.Strategy.CloseTotalThresholdPct,
		},
	}, store.Ledgers(), store.Positions(), executor, account, bus)

	titles := polymarket.NewMarketTitles(client)
	console := notify.NewConsole(log, titles)
	console.SubscribeFailures(bus)

	worker := reconcile.NewWorker(log, reconcile.Config{
		QueueSize:    cfg.Reconcile.QueueSize,
		MaxAttempts:  cfg.Reconcile.MaxAttempts,
		PollInterval: cfg.ReconcilePollInterval(),
	}, auth, store.Positions(), console, bus)
	worker.Subscribe()

	tasks := queue.New[tracker.Task](cfg.Tracker.QueueSize)
	snapshot := tracker.NewSnapshotBuilder(log, client, store.Ledgers(), store.Sessions())
	poller := tracker.NewTradeTracker(log, tracker.Config{
		PollInterval: cfg.PollInterval(),
		PageLimit:    cfg.Tracker.PageLimit,
	}, client, store.SeenTrades(), tasks)
	consumer := tracker.NewConsumer(log, tasks, post, eng)
	runner := tracker.NewRunner(log, tracker.RunnerConfig{
		QueueSize:    cfg.Tracker.QueueSize,
		DrainTimeout: cfg.DrainTimeout(),
	}, cfg.TrackedWallets, snapshot, poller, consumer, tasks, store.Sessions())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// El worker vive fuera del contexto de señal: al apagar, Stop drena las
	// confirmaciones pendientes en vez de cortarlas.
	worker.Start(context.Background())

	runErr := runner.Run(ctx)

	// El worker apura las confirmaciones pendientes antes de cerrar el storage.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	worker.Stop(stopCtx)

	if runErr != nil && ctx.Err() == nil {
		slog.Error("copy trader exited with error", "err", runErr)
		os.Exit(1)
	}
	slog.Info("polycopy stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
