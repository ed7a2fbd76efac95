package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/config"
	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/infrastructure/exchange"
	"github.com/vitos/dca_bot/internal/infrastructure/logger"
	"github.com/vitos/dca_bot/internal/infrastructure/storage"
	"github.com/vitos/dca_bot/internal/usecase"
	"github.com/vitos/dca_bot/internal/web"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLStore(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Fatal("Failed to init storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange session, shared by every bot
	session := exchange.NewBybitSession(exchange.SessionConfig{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		BaseURL:    cfg.Exchange.RESTEndpoint,
		WSURL:      cfg.Exchange.WSEndpoint,
		Timeout:    cfg.Exchange.Timeout,
		RateLimit:  cfg.Exchange.RateLimit,
		RecvWindow: cfg.Exchange.RecvWindow,
	}, log)
	defer session.Close()

	// 5. Init Services
	hub := web.NewHub(log)
	events := domain.MultiSink{hub, storage.NewJournalSink(store, log)}
	svc := usecase.NewBotService(store, session, usecase.ExecutorOptions{
		Category: cfg.Exchange.Category,
		Timeout:  cfg.Exchange.Timeout,
		Events:   events,
	}, log)

	// 6. Price stream and exit watcher
	prices := usecase.NewPriceCache()
	var stream usecase.PriceStream
	if cfg.Monitor.StreamEnabled {
		session.OnPriceUpdate(prices.Update)
		stream = session
	}
	watcher := usecase.NewExitWatcher(svc, prices, session, stream, usecase.WatcherConfig{
		Category:     cfg.Exchange.Category,
		PollInterval: cfg.Monitor.PollInterval,
		ResyncEvery:  cfg.Monitor.ResyncEvery,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)

	// 7. Init Web Server
	server := web.NewServer(cfg.Server.Port, svc, store, hub, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 8. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	watcher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
