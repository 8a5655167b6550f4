package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"securecheckout/internal/bootstrap"
	"securecheckout/internal/config"
	cronpkg "securecheckout/internal/cron"
	"securecheckout/internal/handler"
	"securecheckout/internal/metrics"
	"securecheckout/internal/notify"
	"securecheckout/internal/payment"
	"securecheckout/internal/pkg/telegram"
	"securecheckout/internal/repository"
	"securecheckout/internal/router"
	"securecheckout/internal/sandbox"
	"securecheckout/internal/session"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db, cfg.Gateway.Sandbox, cfg.Checkout.Currency); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	repos := &handler.Repos{
		Product: repository.NewProductRepository(db),
		Basket:  repository.NewBasketRepository(db),
		Order:   repository.NewOrderRepository(db),
	}

	// --- Sessions (Redis with in-memory fallback) ---
	sessions, sessErr := session.NewStore(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB, cfg.Checkout.SessionTTL)
	if sessErr != nil {
		logger.Warn("Redis unavailable for sessions, using in-memory fallback", zap.Error(sessErr))
	}

	// --- Telegram Bot API (direct HTTP client) ---
	botAPI := telegram.NewBotAPI(cfg.Telegram.Token)

	// --- Order placed listeners ---
	hookOpts := []payment.HookOption{
		payment.WithOrderPlacedListener(notify.NewLogListener(logger)),
	}
	if botAPI.Enabled() && cfg.Telegram.ChannelReport != "" {
		hookOpts = append(hookOpts, payment.WithOrderPlacedListener(notify.NewTelegramReporter(botAPI, cfg.Telegram.ChannelReport)))
	}
	var kafkaWriter interface{ Close() error }
	if len(cfg.Kafka.Brokers) > 0 {
		writer := notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		kafkaWriter = writer
		hookOpts = append(hookOpts, payment.WithOrderPlacedListener(notify.NewKafkaPublisher(writer)))
	}
	hooks := payment.NewHookChain(hookOpts...)

	// --- Gateway ---
	signer := payment.NewSigner(cfg.Gateway.SecretKey)
	gatewayCfg := payment.GatewayConfig{
		URL:             cfg.Gateway.URL,
		ProfileID:       cfg.Gateway.ProfileID,
		AccessKey:       cfg.Gateway.AccessKey,
		Locale:          cfg.Gateway.Locale,
		TransactionType: cfg.Gateway.TransactionType,
	}
	var sandboxGateway http.Handler
	if cfg.Gateway.Sandbox {
		gatewayCfg.URL = router.SandboxPath
		sandboxGateway = sandbox.NewGateway(signer, cfg.Checkout.ReplyURL, logger)
	}

	builder, err := payment.NewRequestBuilder(gatewayCfg, signer, hooks, repos.Basket, sessions, logger)
	if err != nil {
		logger.Fatal("Failed to create request builder", zap.Error(err))
	}
	replies := payment.NewReplyProcessor(signer, builder.TransactionType(), repos.Basket, repos.Order, sessions, hooks, logger)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, repos, sessions, builder, replies, cfg.Checkout, sandboxGateway, logger)

	// --- Metrics ---
	metrics.Setup(cfg.Metrics.PushURL, cfg.Metrics.PushInterval, cfg.Metrics.Labels, logger)

	// --- Cron Scheduler ---
	var sweeper cronpkg.SessionSweeper
	if mem, ok := sessions.(*session.MemoryStore); ok {
		sweeper = mem
	}
	scheduler := cronpkg.New(sweeper, repos.Basket, botAPI, cfg.Telegram.ChannelReport, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting checkout server", zap.String("addr", addr), zap.Bool("sandbox", cfg.Gateway.Sandbox))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("Kafka writer close failed", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runDBBootstrap(logger *zap.Logger) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg)
	if err != nil {
		return err
	}
	if err := bootstrap.Migrate(db); err != nil {
		return err
	}
	logger.Info("Schema migration completed")
	return nil
}
