package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"cryptoalert/internal/database"
	"cryptoalert/internal/logger"
)

func main() {
	dbPath := flag.String("db", "data/crypto_alert.db", "Path to the SQLite database file")
	flag.Parse()

	logg, err := logger.New("error")
	if err != nil {
		log.Fatal("Logger setup failed:", err)
	}

	db, err := database.Open(*dbPath, logg)
	if err != nil {
		log.Fatal("Database connection failed:", err)
	}
	defer db.Close()

	fmt.Println("✅ Successfully connected to the database!")

	stats, err := db.Stats(context.Background())
	if err != nil {
		log.Fatal("Database stats failed:", err)
	}
	fmt.Printf("   watchlist:     %d rows\n", stats.WatchlistRows)
	fmt.Printf("   price_history: %d rows\n", stats.PriceHistoryRows)
	fmt.Printf("   alerts:        %d rows\n", stats.AlertRows)
	fmt.Printf("   notifications: %d rows\n", stats.NotificationRows)
	fmt.Printf("   database size: %d bytes\n", stats.SizeBytes)
}
