package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/config"
	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/infrastructure/exchange"
	"github.com/vitos/dca_bot/internal/infrastructure/storage"
	"github.com/vitos/dca_bot/internal/usecase"
)

// Dry run: prints the ladder and exit thresholds each stored bot would
// use at the current market price. No orders are placed.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	user := flag.String("user", "default_user", "owner of the bots")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Storage
	store, err := storage.NewSQLStore(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		fmt.Printf("Failed to init storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// 3. Init Exchange
	session := exchange.NewBybitSession(exchange.SessionConfig{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		BaseURL:    cfg.Exchange.RESTEndpoint,
		Timeout:    cfg.Exchange.Timeout,
		RecvWindow: cfg.Exchange.RecvWindow,
	}, zap.NewNop())
	ctx := context.Background()

	// 4. List Bots
	bots, err := store.LoadBots(ctx, *user)
	if err != nil {
		fmt.Printf("Failed to load bots: %v\n", err)
		os.Exit(1)
	}
	if len(bots) == 0 {
		fmt.Println("No bots found in DB.")
		return
	}

	fmt.Printf("Found %d bots. Analyzing...\n", len(bots))

	for _, b := range bots {
		fmt.Printf("\n--------------------------------------------------\n")
		fmt.Printf("Bot: %s [%s], Symbol: %s, Enabled: %t\n", b.Name, b.Type, b.Symbol, b.Enabled)

		strategy, err := domain.NewStrategyConfig(b)
		if err != nil {
			fmt.Printf("❌ Invalid configuration: %v\n", err)
			continue
		}

		currPrice, err := session.GetCurrentPrice(ctx, cfg.Exchange.Category, b.Symbol)
		if err != nil {
			fmt.Printf("❌ Failed to get current price: %v\n", err)
			continue
		}
		fmt.Printf("Current Market Price: %f\n", currPrice)

		if b.Type == domain.BotTypeDCA {
			fmt.Printf("Ladder (deviation %.2f%%, cap %d):\n", b.PriceDeviation, strategy.MaxSafetyOrders)
			dry := &usecase.LadderResult{}
			for i := 0; i < strategy.DCALevels; i++ {
				size := strategy.SafetyOrderSize
				if i == 0 {
					size = strategy.BaseOrderSize
				}
				price := usecase.LevelPrice(currPrice, strategy.PriceDeviation, i)
				mark := ""
				if i >= strategy.MaxSafetyOrders {
					mark = " (beyond cap)"
				} else {
					dry.Levels = append(dry.Levels, usecase.LadderLevel{Index: i, Price: price, Size: size, Status: usecase.LevelFilled})
				}
				fmt.Printf("  Level %d: %f x %f%s\n", i, price, size, mark)
			}
			if avg, size := dry.FilledAverage(); size > 0 {
				fmt.Printf("Entry if every level fills: %f x %f\n", avg, size)
			}
		}

		tp, sl, err := usecase.NewExitMonitor(nil, strategy, zap.NewNop()).Thresholds(currPrice)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			continue
		}
		fmt.Printf("Exit if entered now:\n")
		fmt.Printf("  Take Profit (%.2f%%): %f\n", b.TakeProfit, tp)
		fmt.Printf("  Stop Loss   (%.2f%%): %f\n", b.StopLoss, sl)
	}
}
