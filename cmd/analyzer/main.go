package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/config"
	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/infrastructure/storage"
	"github.com/vitos/dca_bot/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	limit := flag.Int("limit", 500, "journal entries per bot")
	top := flag.Int("top", 30, "rows to print")
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
	users, err := store.ListUsers(ctx)
	if err != nil {
		fmt.Printf("Failed to list users: %v\n", err)
		os.Exit(1)
	}

	var bots []domain.BotConfig
	for _, u := range users {
		userBots, err := store.LoadBots(ctx, u)
		if err != nil {
			fmt.Printf("Error loading bots of %s: %v\n", u, err)
			continue
		}
		bots = append(bots, userBots...)
	}

	analyzer := usecase.NewJournalAnalyzer(store, zap.NewNop())
	results := analyzer.Analyze(ctx, bots, *limit)

	fmt.Printf("\nJournal summary (total analyzed: %d bots):\n", len(results))
	fmt.Printf("%-20s | %-10s | %-6s | %-6s | %-12s | %-12s | %s\n", "Bot", "Symbol", "Buys", "Sells", "Avg Buy", "Avg Sell", "PnL")
	fmt.Println("--------------------------------------------------------------------------------------------")

	for i, res := range results {
		if i >= *top {
			break
		}
		fmt.Printf("%-20s | %-10s | %-6d | %-6d | %-12.4f | %-12.4f | %.4f\n",
			res.BotName, res.Symbol, res.Buys, res.Sells, res.AvgBuyPrice, res.AvgSellPrice, res.RealizedPnL)
	}
}
