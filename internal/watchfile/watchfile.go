// Package watchfile reads and writes the legacy flat-file watchlist, a
// JSON array of {coin, threshold, direction} objects. The database is the
// source of truth; this format survives for import and export.
package watchfile

import (
	"encoding/json"
	"fmt"
	"os"

	"cryptoalert/internal/models"
)

// Entry is one alert rule in the legacy file format.
type Entry struct {
	Coin      string  `json:"coin"`
	Threshold float64 `json:"threshold"`
	Direction string  `json:"direction"`
}

// Thresholds groups a coin's directional thresholds for import into the
// watchlist table.
type Thresholds struct {
	Above *float64
	Below *float64
}

// Load reads the file. A missing file is an empty watchlist, not an error.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read watchlist file: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse watchlist file %s: %w", path, err)
	}
	return entries, nil
}

// Save writes the entries with the format's four-space indentation.
func Save(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}

	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("encode watchlist file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write watchlist file: %w", err)
	}
	return nil
}

// Add appends e unless an identical rule (same coin, threshold and
// direction) is already present. The second return reports whether the
// list changed.
func Add(entries []Entry, e Entry) ([]Entry, bool) {
	for _, existing := range entries {
		if existing == e {
			return entries, false
		}
	}
	return append(entries, e), true
}

// Remove drops every rule for the coin and reports how many went away.
func Remove(entries []Entry, coin string) ([]Entry, int) {
	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		if e.Coin == coin {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	return kept, removed
}

// Merge folds file entries into per-coin thresholds for the watchlist
// table. Later rules win when a coin repeats a direction. Rules with a
// direction outside {above, below} cannot be expressed as thresholds and
// come back in skipped.
func Merge(entries []Entry) (map[string]Thresholds, []Entry) {
	merged := make(map[string]Thresholds)
	var skipped []Entry

	for _, e := range entries {
		t := merged[e.Coin]
		switch models.Direction(e.Direction) {
		case models.DirectionAbove:
			v := e.Threshold
			t.Above = &v
		case models.DirectionBelow:
			v := e.Threshold
			t.Below = &v
		default:
			skipped = append(skipped, e)
			continue
		}
		merged[e.Coin] = t
	}
	return merged, skipped
}

// FromWatchlist flattens watchlist rows back into file entries, one rule
// per configured threshold.
func FromWatchlist(rows []models.WatchlistEntry) []Entry {
	var entries []Entry
	for _, row := range rows {
		if row.ThresholdAbove != nil {
			entries = append(entries, Entry{
				Coin:      row.CoinID,
				Threshold: *row.ThresholdAbove,
				Direction: string(models.DirectionAbove),
			})
		}
		if row.ThresholdBelow != nil {
			entries = append(entries, Entry{
				Coin:      row.CoinID,
				Threshold: *row.ThresholdBelow,
				Direction: string(models.DirectionBelow),
			})
		}
	}
	return entries
}
