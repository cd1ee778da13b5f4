// Command feed tails the live alert feed and prints each alert as it
// arrives. Useful for watching a running monitor without opening the
// database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"cryptoalert/internal/config"
	"cryptoalert/internal/feed"
	"cryptoalert/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	redisAddr := flag.String("redis", "", "Redis address (overrides config)")
	asJSON := flag.Bool("json", false, "Print one JSON message per line")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	addr := *redisAddr
	if addr == "" {
		addr = cfg.Feed.RedisAddr
	}
	if addr == "" {
		log.Fatal("No Redis address configured; set feed.redis_addr or pass -redis")
	}

	logg, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := feed.NewSubscriber(addr, logg)
	if err != nil {
		logg.Fatal("Failed to subscribe to alert feed", zap.Error(err))
	}
	defer sub.Close()

	for {
		alert, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logg.Info("Feed reader shutting down")
				return
			}
			logg.Fatal("Feed read failed", zap.Error(err))
		}

		if *asJSON {
			line, err := json.Marshal(alert)
			if err != nil {
				logg.Error("Failed to encode alert", zap.Error(err))
				continue
			}
			fmt.Println(string(line))
			continue
		}
		fmt.Printf("%s  %s\n", alert.TriggeredAt.Format("2006-01-02 15:04:05"), alert.Message)
	}
}
