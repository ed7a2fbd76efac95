package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/dca_bot/internal/config"
	"github.com/vitos/dca_bot/internal/infrastructure/storage"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	user := flag.String("user", "", "only dump this user")
	history := flag.Int("history", 5, "journal entries to show per bot")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLStore(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		fmt.Printf("Failed to init storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	users := []string{*user}
	if *user == "" {
		users, err = store.ListUsers(ctx)
		if err != nil {
			fmt.Printf("Failed to list users: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Found %d users\n", len(users))
	for _, u := range users {
		bots, err := store.LoadBots(ctx, u)
		if err != nil {
			fmt.Printf("❌ %s: failed to load bots: %v\n", u, err)
			continue
		}
		fmt.Printf("User %s: %d bots\n", u, len(bots))
		for _, b := range bots {
			fmt.Printf("- %s [%s] %s enabled=%t TP=%.2f%% SL=%.2f%%", b.Name, b.Type, b.Symbol, b.Enabled, b.TakeProfit, b.StopLoss)
			if b.Type == "dca" {
				fmt.Printf(" levels=%d dev=%.2f%% cap=%d", b.DCALevels, b.PriceDeviation, b.MaxSafetyOrders)
			}
			fmt.Println()

			orders, err := store.ListOrders(ctx, b.ID, *history)
			if err != nil {
				fmt.Printf("  ❌ Failed to list orders: %v\n", err)
				continue
			}
			for _, o := range orders {
				price := "market"
				if o.Price != nil {
					price = fmt.Sprintf("%f", *o.Price)
				}
				fmt.Printf("  %s %s %s qty=%f price=%s (%s)\n", o.CreatedAt.Format("2006-01-02 15:04:05"), o.Side, o.Type, o.Quantity, price, o.ID)
			}
		}
	}
}
