package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"StockScreener/internal/api"
	"StockScreener/internal/collector"
	"StockScreener/internal/config"
	"StockScreener/internal/logger"
	"StockScreener/internal/notifier"
	"StockScreener/internal/scanner"
	"StockScreener/internal/scheduler"
	"StockScreener/internal/session"
	"StockScreener/internal/universe"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Fatalf("load .env: %v", err)
	}

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("config validation: %v", err)
	}

	log := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		JSON:       cfg.Log.JSON,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}).WithField("component", "main")
	log.Info("StockScreener starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, auth, err := newProvider(cfg)
	if err != nil {
		log.Fatalf("init data source: %v", err)
	}
	log.Infof("data source: %s", provider.Name())

	uni, closeUniverse, err := newUniverse(ctx, cfg, log)
	if err != nil {
		log.Fatalf("init universe: %v", err)
	}
	defer closeUniverse()

	sc := scanner.New(provider, scanner.Options{
		Concurrency:   cfg.Scan.Concurrency,
		FetchTimeout:  cfg.Upstream.FetchTimeout,
		Lookback:      cfg.Scan.Lookback,
		Authenticator: auth,
	})
	col := collector.NewCollector(provider, cfg.Scan.Lookback)

	if cfg.TelegramEnabled() {
		tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIURL, cfg.Proxy)
		sched := scheduler.NewScheduler(ctx, sc, uni, tn, scheduler.NewTradingCalendar(cfg.Schedule.Calendar), cfg.Scan.Lookback)
		if err := sched.RegisterAll(cfg.Schedule.Jobs); err != nil {
			log.Fatalf("register jobs: %v", err)
		}
		sched.Start()
		defer sched.Stop()

		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("Telegram polling started")

		if os.Getenv("RUN_ON_START") == "true" {
			log.Info("RUN_ON_START enabled, running all jobs now")
			go sched.RunAllNow()
		}
	} else {
		log.Warn("telegram not configured, scheduled jobs disabled")
	}

	srv := api.NewServer(cfg.Server.Addr, sc, uni, col, cfg.Scan.Lookback)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("shutdown signal received, stopping...")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("http server stopped")
		}
	}
	cancel()
	log.Info("StockScreener stopped")
}

func newProvider(cfg *config.Config) (collector.HistoryProvider, scanner.Authenticator, error) {
	opts := collector.ClientOptions{
		Timeout:           cfg.Upstream.FetchTimeout,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Burst:             cfg.Upstream.Burst,
		Proxy:             cfg.Proxy,
		UserAgent:         cfg.Upstream.UserAgent,
	}
	switch cfg.Upstream.Source {
	case "nse":
		cache, err := session.New(collector.NewNSECookieProvider(cfg.Upstream.NSELandingURL, opts), session.Options{
			TTL:            cfg.Session.TTL,
			MaxRetries:     cfg.Session.MaxRetries,
			RetryBackoff:   cfg.Session.RetryBackoff,
			FailureCeiling: cfg.Session.FailureCeiling,
			StateFile:      cfg.Session.StateFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return collector.NewNSEProvider(cfg.Upstream.NSEChartURL, cache, opts), cache, nil
	case "mock":
		return &collector.MockProvider{}, nil, nil
	default:
		return collector.NewMoneyControlProvider(cfg.Upstream.MoneyControlURL, opts), nil, nil
	}
}

// newUniverse serves the universe from SQLite when configured, seeding it
// from the metadata file, and from the file alone otherwise.
func newUniverse(ctx context.Context, cfg *config.Config, log *logrus.Entry) (universe.Provider, func(), error) {
	file := universe.NewFileProvider(cfg.Universe.MetadataFile)
	if cfg.Universe.SQLitePath == "" {
		return file, func() {}, nil
	}

	store, err := universe.NewSQLiteStore(cfg.Universe.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	n, err := universe.Seed(ctx, store, file)
	if err != nil {
		count, cerr := store.Count(ctx)
		if cerr != nil || count == 0 {
			store.Close()
			return nil, nil, err
		}
		log.WithError(err).Warnf("seed failed, serving %d stored entries", count)
	} else {
		log.Infof("universe seeded with %d entries", n)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("close universe store")
		}
	}, nil
}
