package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillm/gap-pullback-bot/internal/api"
	"github.com/kirillm/gap-pullback-bot/internal/config"
	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/exchange"
	"github.com/kirillm/gap-pullback-bot/internal/execution"
	"github.com/kirillm/gap-pullback-bot/internal/metrics"
	"github.com/kirillm/gap-pullback-bot/internal/orchestrator"
	"github.com/kirillm/gap-pullback-bot/internal/storage"
	"github.com/kirillm/gap-pullback-bot/internal/storage/memory"
	"github.com/kirillm/gap-pullback-bot/internal/strategy"
	"github.com/kirillm/gap-pullback-bot/internal/telegram"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := utils.NewLoggerWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("Gap & Pullback bot %s starting (mode %s, storage %s)", version, cfg.Mode, cfg.Storage)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := utils.InitTracing(cfg.Tracing, version); err != nil {
		logger.Error("Failed to init tracing: %v", err)
	}
	metrics.InitMetrics()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open storage: %v", err)
		os.Exit(1)
	}
	defer closeStore()

	broker := newBroker(cfg, logger)

	clock, err := orchestrator.NewClock(cfg.Strategy.Clock)
	if err != nil {
		logger.Error("Invalid clock config: %v", err)
		os.Exit(1)
	}

	notifier := orchestrator.NewMultiNotifier(orchestrator.NewLogNotifier(logger))
	killSwitch := execution.NewKillSwitch(logger)
	executor := execution.NewExecutor(broker, store, cfg.Strategy.Position, cfg.Strategy.Risk, killSwitch, logger)

	ctrl := orchestrator.NewController(orchestrator.Deps{
		Broker:       broker,
		Store:        store,
		Screening:    strategy.NewScreeningEngine(broker, store, cfg.Strategy.Screening, logger),
		Pullback:     strategy.NewPullbackStateMachine(broker, store, cfg.Strategy.Pullback, logger),
		Risk:         strategy.NewRiskManager(broker, store, executor, cfg.Strategy.Risk, notifier, logger),
		Executor:     executor,
		Notifier:     notifier,
		Clock:        clock,
		Candidates:   cfg.Strategy.Candidates,
		MaxPositions: cfg.Strategy.Position.MaxPositions,
	}, logger)

	if cfg.Telegram.BotToken != "" {
		bot, err := telegram.NewBot(cfg.Telegram, ctrl, store.Positions, logger)
		if err != nil {
			logger.Error("Telegram disabled: %v", err)
		} else {
			notifier.Add(bot)
			go bot.Run(ctx)
		}
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is empty, notifications go to the log only")
	}

	server := api.NewServer(logger, ctrl, store.Positions, cfg.HTTP.Addr)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server failed: %v", err)
			stop()
		}
	}()

	if !broker.Configured() {
		logger.Warn("Broker credentials are missing, /start_bot will be refused")
	}

	scheduler := orchestrator.NewScheduler(ctrl, cfg.Strategy.Clock.TickInterval, logger)
	scheduler.Run(ctx)

	logger.Info("Shutdown signal received, stopping...")
	ctrl.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown: %v", err)
	}
	if err := utils.ShutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracing shutdown: %v", err)
	}
	logger.Info("Bot stopped")
}

// openStore выбирает Postgres или in-memory хранилище
func openStore(ctx context.Context, cfg *config.Config) (*domain.Store, func(), error) {
	if cfg.Storage == "memory" {
		return memory.New().Store(), func() {}, nil
	}

	pg, err := storage.NewPostgresStorage(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return pg.Store(), func() { _ = pg.Close() }, nil
}

// newBroker REST-клиент, в DRY_RUN обернутый бумажным исполнением, плюс метрики и спаны
func newBroker(cfg *config.Config, logger *utils.Logger) exchange.Broker {
	var broker exchange.Broker = exchange.NewRESTClient(exchange.RESTConfig{
		BaseURL:   cfg.Broker.BaseURL,
		AppKey:    cfg.Broker.AppKey,
		AppSecret: cfg.Broker.AppSecret,
		AccountNo: cfg.Broker.AccountNo,
		Timeout:   cfg.Broker.Timeout,
	}, logger.With("component", "broker"))

	if cfg.Mode == domain.ModeDryRun {
		logger.Info(">> DRY_RUN mode: orders are filled by the paper broker")
		broker = exchange.NewPaperBroker(broker, cfg.PaperCash)
	}
	return exchange.Observe(broker)
}
