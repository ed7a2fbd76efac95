package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/config"
	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/infrastructure/exchange"
	"github.com/vitos/dca_bot/internal/infrastructure/storage"
	"github.com/vitos/dca_bot/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	user := flag.String("user", "default_user", "owner of the bot")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to trade")
	name := flag.String("name", "Test DCA", "bot name")
	enabled := flag.Bool("enabled", true, "let the exit watcher pick the bot up")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	store, err := storage.NewSQLStore(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	session := exchange.NewBybitSession(exchange.SessionConfig{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		BaseURL:   cfg.Exchange.RESTEndpoint,
	}, zap.NewNop())
	svc := usecase.NewBotService(store, session, usecase.ExecutorOptions{Category: cfg.Exchange.Category}, zap.NewNop())

	// Small sizes and a tight ladder for testing
	size := 0.001
	levels := 2
	deviation := 0.5
	bot, err := svc.AddBot(context.Background(), *user, usecase.AddBotRequest{
		Type:            domain.BotTypeDCA,
		Name:            *name,
		Symbol:          *symbol,
		BaseOrderSize:   &size,
		SafetyOrderSize: &size,
		DCALevels:       &levels,
		PriceDeviation:  &deviation,
		MaxSafetyOrders: &levels,
		Enabled:         *enabled,
	})
	if err != nil {
		log.Fatalf("Failed to add bot: %v", err)
	}

	fmt.Printf("✅ Test bot created successfully!\n")
	fmt.Printf("   ID: %s\n", bot.ID)
	fmt.Printf("   User: %s\n", bot.UserID)
	fmt.Printf("   Name: %s\n", bot.Name)
	fmt.Printf("   Symbol: %s\n", bot.Symbol)
	fmt.Printf("   Enabled: %t\n", bot.Enabled)
	fmt.Printf("   Levels: %d @ %.2f%%, TP %.2f%%, SL %.2f%%\n", bot.DCALevels, bot.PriceDeviation, bot.TakeProfit, bot.StopLoss)
}
