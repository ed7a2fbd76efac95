package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/config"
	"github.com/vitos/dca_bot/internal/infrastructure/exchange"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to query")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing Bybit Interaction...\n")
	fmt.Printf("Endpoint: %s (category %s)\n", cfg.Exchange.RESTEndpoint, cfg.Exchange.Category)
	if len(cfg.Exchange.APIKey) >= 4 {
		fmt.Printf("API Key: %s...\n", cfg.Exchange.APIKey[:4])
	}

	session := exchange.NewBybitSession(exchange.SessionConfig{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		BaseURL:    cfg.Exchange.RESTEndpoint,
		Timeout:    cfg.Exchange.Timeout,
		RecvWindow: cfg.Exchange.RecvWindow,
	}, zap.NewNop())
	ctx := context.Background()

	// Public endpoints
	price, err := session.GetCurrentPrice(ctx, cfg.Exchange.Category, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Current Price (%s): %f\n", *symbol, price)
	}

	instruments, err := session.GetInstruments(ctx, cfg.Exchange.Category)
	if err != nil {
		fmt.Printf("❌ Failed to list instruments: %v\n", err)
	} else {
		fmt.Printf("✅ Tradable symbols: %d\n", len(instruments))
	}

	// Private endpoints
	orders, err := session.GetOpenOrders(ctx, cfg.Exchange.Category, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get open orders: %v\n", err)
	} else {
		fmt.Printf("✅ Open orders (%s): %d\n", *symbol, len(orders))
		for _, o := range orders {
			fmt.Printf("   %s %s %s qty=%f price=%f status=%s\n", o.OrderID, o.Side, o.Type, o.Quantity, o.Price, o.Status)
		}
	}

	positions, err := session.GetOpenPositions(ctx, cfg.Exchange.Category, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get positions: %v\n", err)
	} else {
		fmt.Printf("✅ Open positions (%s): %d\n", *symbol, len(positions))
		for _, p := range positions {
			fmt.Printf("   Size=%f, Side=%s, Entry=%f, PnL=%f\n", p.Size, p.Side, p.EntryPrice, p.UnrealizedPnL)
		}
	}
}
