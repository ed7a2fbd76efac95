package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/infrastructure/exchange"
)

// Prints spot ticker updates from the public stream. No API keys needed.
func main() {
	symbols := flag.String("symbols", "BTCUSDT,ETHUSDT", "comma separated symbols")
	wsURL := flag.String("ws", exchange.BybitWSURL, "public spot stream endpoint")
	duration := flag.Duration("for", 30*time.Second, "how long to listen")
	flag.Parse()

	session := exchange.NewBybitSession(exchange.SessionConfig{WSURL: *wsURL}, zap.NewNop())
	defer session.Close()

	session.OnPriceUpdate(func(symbol string, price float64) {
		fmt.Printf("%s %-12s %.4f\n", time.Now().Format("15:04:05.000"), symbol, price)
	})

	list := strings.Split(*symbols, ",")
	fmt.Printf("Subscribing to %v on %s...\n", list, *wsURL)
	if err := session.Subscribe(list); err != nil {
		log.Fatalf("Error subscribing: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	select {
	case <-stop:
	case <-time.After(*duration):
	}
}
