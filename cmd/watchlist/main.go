package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"cryptoalert/internal/coingecko"
	"cryptoalert/internal/config"
	"cryptoalert/internal/database"
	"cryptoalert/internal/logger"
	"cryptoalert/internal/watchfile"
)

const timeFormat = "2006-01-02 15:04:05"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "add":
		err = cmdAdd(os.Args[2:])
	case "remove":
		err = cmdRemove(os.Args[2:])
	case "show":
		err = cmdShow(os.Args[2:])
	case "enable":
		err = cmdSetEnabled(os.Args[2:], true)
	case "disable":
		err = cmdSetEnabled(os.Args[2:], false)
	case "update":
		err = cmdUpdate(os.Args[2:])
	case "alerts":
		err = cmdAlerts(os.Args[2:])
	case "ack":
		err = cmdAck(os.Args[2:])
	case "history":
		err = cmdHistory(os.Args[2:])
	case "notifications":
		err = cmdNotifications(os.Args[2:])
	case "import":
		err = cmdImport(os.Args[2:])
	case "export":
		err = cmdExport(os.Args[2:])
	case "cleanup":
		err = cmdCleanup(os.Args[2:])
	case "backup":
		err = cmdBackup(os.Args[2:])
	case "vacuum":
		err = cmdVacuum(os.Args[2:])
	case "stats":
		err = cmdStats(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// open loads the config and opens the database. The CLI logs at error
// level only so command output stays readable.
func open(configPath string) (*config.Config, *database.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logg, err := logger.New("error")
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg.Database.Path, logg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func parseThreshold(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid threshold %q", s)
	}
	return &v, nil
}

func formatThreshold(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func cmdAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	coin := fs.String("coin", "", "Coin id (e.g. bitcoin)")
	name := fs.String("name", "", "Display name (defaults to the coin id)")
	above := fs.String("above", "", "Alert when the price rises above this value")
	below := fs.String("below", "", "Alert when the price falls below this value")
	fs.Parse(args)

	if *coin == "" {
		return errors.New("add: -coin is required")
	}
	if !coingecko.ValidCoinID(*coin) {
		return fmt.Errorf("add: invalid coin id %q (lowercase letters, digits, hyphen, underscore)", *coin)
	}
	thresholdAbove, err := parseThreshold(*above)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	thresholdBelow, err := parseThreshold(*below)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	coinName := *name
	if coinName == "" {
		coinName = *coin
	}

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.AddToWatchlist(context.Background(), *coin, coinName, thresholdAbove, thresholdBelow); err != nil {
		return err
	}
	fmt.Printf("Added %s to watchlist\n", *coin)
	return nil
}

func cmdRemove(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	coin := fs.String("coin", "", "Coin id to remove")
	fs.Parse(args)

	if *coin == "" {
		return errors.New("remove: -coin is required")
	}

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RemoveFromWatchlist(context.Background(), *coin); err != nil {
		return err
	}
	fmt.Printf("Removed %s from watchlist\n", *coin)
	return nil
}

func cmdShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	coin := fs.String("coin", "", "Show full detail for one coin")
	all := fs.Bool("all", false, "Include disabled entries")
	fs.Parse(args)

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	if *coin != "" {
		entry, err := db.GetWatchlistEntry(ctx, *coin)
		if err != nil {
			return err
		}
		fmt.Printf("Coin:       %s\n", entry.CoinID)
		fmt.Printf("Name:       %s\n", entry.CoinName)
		fmt.Printf("Above:      %s\n", formatThreshold(entry.ThresholdAbove))
		fmt.Printf("Below:      %s\n", formatThreshold(entry.ThresholdBelow))
		fmt.Printf("Enabled:    %s\n", yesNo(entry.Enabled))
		fmt.Printf("Created:    %s\n", entry.CreatedAt.Format(timeFormat))
		fmt.Printf("Updated:    %s\n", entry.UpdatedAt.Format(timeFormat))
		return nil
	}

	var list []watchRow
	if *all {
		rows, err := db.GetAllWatchlistEntries(ctx)
		if err != nil {
			return err
		}
		for _, r := range rows {
			list = append(list, watchRow{r.CoinID, r.CoinName, r.ThresholdAbove, r.ThresholdBelow, r.Enabled})
		}
	} else {
		rows, err := db.GetWatchlist(ctx)
		if err != nil {
			return err
		}
		for _, r := range rows {
			list = append(list, watchRow{r.CoinID, r.CoinName, r.ThresholdAbove, r.ThresholdBelow, r.Enabled})
		}
	}

	if len(list) == 0 {
		fmt.Println("Watchlist is empty")
		return nil
	}

	fmt.Printf("%-16s %-20s %12s %12s %-8s\n", "COIN", "NAME", "ABOVE", "BELOW", "ENABLED")
	for _, r := range list {
		fmt.Printf("%-16s %-20s %12s %12s %-8s\n", r.coinID, r.name, formatThreshold(r.above), formatThreshold(r.below), yesNo(r.enabled))
	}
	return nil
}

type watchRow struct {
	coinID, name string
	above, below *float64
	enabled      bool
}

func cmdSetEnabled(args []string, enabled bool) error {
	name := "disable"
	if enabled {
		name = "enable"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	coin := fs.String("coin", "", "Coin id")
	fs.Parse(args)

	if *coin == "" {
		return fmt.Errorf("%s: -coin is required", name)
	}

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SetEnabled(context.Background(), *coin, enabled); err != nil {
		return err
	}
	if enabled {
		fmt.Printf("Enabled %s\n", *coin)
	} else {
		fmt.Printf("Disabled %s\n", *coin)
	}
	return nil
}

func cmdUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	coin := fs.String("coin", "", "Coin id")
	above := fs.String("above", "", "New above threshold")
	below := fs.String("below", "", "New below threshold")
	fs.Parse(args)

	if *coin == "" {
		return errors.New("update: -coin is required")
	}
	thresholdAbove, err := parseThreshold(*above)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	thresholdBelow, err := parseThreshold(*below)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.UpdateThresholds(context.Background(), *coin, thresholdAbove, thresholdBelow); err != nil {
		return err
	}
	fmt.Printf("Updated thresholds for %s\n", *coin)
	return nil
}

func cmdAlerts(args []string) error {
	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	coin := fs.String("coin", "", "Filter by coin id")
	limit := fs.Int("limit", 100, "Maximum number of alerts to show")
	fs.Parse(args)

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	alerts, err := db.GetAlerts(context.Background(), *coin, *limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Println("No alerts")
		return nil
	}

	fmt.Printf("%-6s %-16s %-8s %12s %12s %-20s %-4s %-5s\n", "ID", "COIN", "TYPE", "THRESHOLD", "PRICE", "TRIGGERED", "ACK", "SENT")
	for _, a := range alerts {
		fmt.Printf("%-6d %-16s %-8s %12.2f %12.2f %-20s %-4s %-5s\n",
			a.ID, a.CoinID, a.AlertType, a.Threshold, a.CurrentPrice,
			a.TriggeredAt.Format(timeFormat), yesNo(a.Acknowledged), yesNo(a.NotificationSent))
	}
	return nil
}

func cmdAck(args []string) error {
	fs := flag.NewFlagSet("ack", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	id := fs.Int64("id", 0, "Alert id to acknowledge")
	fs.Parse(args)

	if *id <= 0 {
		return errors.New("ack: -id is required")
	}

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.AcknowledgeAlert(context.Background(), *id); err != nil {
		return err
	}
	fmt.Printf("Acknowledged alert %d\n", *id)
	return nil
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	coin := fs.String("coin", "", "Coin id")
	days := fs.Int("days", 30, "How many days back to show")
	fs.Parse(args)

	if *coin == "" {
		return errors.New("history: -coin is required")
	}

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	samples, err := db.GetPriceHistory(context.Background(), *coin, *days)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Printf("No price history for %s in the last %d days\n", *coin, *days)
		return nil
	}

	fmt.Printf("%-20s %16s %12s\n", "TIMESTAMP", "PRICE", "24H %")
	for _, s := range samples {
		fmt.Printf("%-20s %16.2f %12s\n", s.CapturedAt.Format(timeFormat), s.Price, formatThreshold(s.PriceChangePct24h))
	}
	return nil
}

func cmdNotifications(args []string) error {
	fs := flag.NewFlagSet("notifications", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	limit := fs.Int("limit", 50, "Maximum number of entries to show")
	fs.Parse(args)

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.RecentNotifications(context.Background(), *limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No notifications recorded")
		return nil
	}

	fmt.Printf("%-20s %-8s %-7s %-24s %s\n", "SENT", "CHANNEL", "OK", "RECIPIENT", "SUBJECT")
	for _, r := range records {
		fmt.Printf("%-20s %-8s %-7s %-24s %s\n",
			r.SentAt.Format(timeFormat), r.Channel, yesNo(r.Success), r.Recipient, r.Subject)
		if r.ErrorMessage != "" {
			fmt.Printf("%-20s   error: %s\n", "", r.ErrorMessage)
		}
	}
	return nil
}

func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	file := fs.String("file", "watchlist.json", "Legacy watchlist file to import")
	fs.Parse(args)

	entries, err := watchfile.Load(*file)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No entries to import from %s\n", *file)
		return nil
	}

	merged, skipped := watchfile.Merge(entries)
	for _, s := range skipped {
		fmt.Fprintf(os.Stderr, "Skipping %s: direction %q has no threshold mapping\n", s.Coin, s.Direction)
	}

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	coins := make([]string, 0, len(merged))
	for coin := range merged {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	for _, coin := range coins {
		t := merged[coin]
		if err := db.AddToWatchlist(ctx, coin, coin, t.Above, t.Below); err != nil {
			return err
		}
	}
	fmt.Printf("Imported %d coins from %s\n", len(coins), *file)
	return nil
}

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	file := fs.String("file", "watchlist.json", "Destination file")
	fs.Parse(args)

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.GetWatchlist(context.Background())
	if err != nil {
		return err
	}

	rules := watchfile.FromWatchlist(entries)
	if err := watchfile.Save(*file, rules); err != nil {
		return err
	}
	fmt.Printf("Exported %d rules to %s\n", len(rules), *file)
	return nil
}

func cmdCleanup(args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	days := fs.Int("days", 0, "Retention in days (defaults to the configured value)")
	fs.Parse(args)

	cfg, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	retention := *days
	if retention <= 0 {
		retention = cfg.Database.RetentionDays
	}

	deleted, err := db.CleanupOldPriceData(context.Background(), retention)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d price rows older than %d days\n", deleted, retention)
	return nil
}

func cmdBackup(args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	path := fs.String("path", "", "Destination file for the backup")
	fs.Parse(args)

	if *path == "" {
		return errors.New("backup: -path is required")
	}

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Backup(context.Background(), *path); err != nil {
		return err
	}
	fmt.Printf("Backed up database to %s\n", *path)
	return nil
}

func cmdVacuum(args []string) error {
	fs := flag.NewFlagSet("vacuum", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	fs.Parse(args)

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Vacuum(context.Background()); err != nil {
		return err
	}
	fmt.Println("Database vacuumed")
	return nil
}

func cmdStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config file")
	fs.Parse(args)

	_, db, err := open(*configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := db.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Watchlist entries: %d\n", s.WatchlistRows)
	fmt.Printf("Price samples:     %d\n", s.PriceHistoryRows)
	fmt.Printf("Alerts:            %d\n", s.AlertRows)
	fmt.Printf("Notifications:     %d\n", s.NotificationRows)
	fmt.Printf("Database size:     %d bytes\n", s.SizeBytes)
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: watchlist <command> [flags]

Commands:
  add            Add or update a tracked coin (-coin, -name, -above, -below)
  remove         Remove a coin (-coin)
  show           List tracked coins (-coin for detail, -all includes disabled)
  enable         Re-enable a coin (-coin)
  disable        Disable a coin without losing its thresholds (-coin)
  update         Change thresholds (-coin, -above, -below)
  alerts         List recent alerts (-coin, -limit)
  ack            Acknowledge an alert (-id)
  history        Show stored price samples (-coin, -days)
  notifications  Show the delivery audit log (-limit)
  import         Import rules from a legacy watchlist.json (-file)
  export         Export rules to a legacy watchlist.json (-file)
  cleanup        Delete price samples beyond retention (-days)
  backup         Write a point-in-time database copy (-path)
  vacuum         Reclaim unused database space
  stats          Show table counts and database size

Each command also accepts -config (default config.yaml).`)
}
