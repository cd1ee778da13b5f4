package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"cryptoalert/internal/cache"
	"cryptoalert/internal/config"
	"cryptoalert/internal/models"
)

var (
	// ErrInvalidCoinID marks ids rejected before any network call.
	ErrInvalidCoinID = errors.New("invalid coin id")
	// ErrNotFound marks ids the price API does not recognize.
	ErrNotFound = errors.New("coin not found")
)

// Coin ids are lowercase slugs, e.g. "bitcoin" or "play-2-earn".
var validCoinID = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidCoinID reports whether id is usable with the price API.
func ValidCoinID(id string) bool {
	return validCoinID.MatchString(id)
}

var priceFetchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "price_fetch_requests_total",
		Help: "Total number of price API requests by outcome",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(priceFetchTotal)
}

const priceEndpoint = "simple/price"

// Client fetches current prices from the CoinGecko simple price API.
// Responses are cached per call signature; after every real upstream call a
// fixed delay is slept to respect the public API quota. Cache hits skip both
// the network call and the delay.
type Client struct {
	baseURL   string
	http      *http.Client
	cache     *cache.PriceCache
	rateDelay time.Duration
	log       *zap.Logger
}

// New builds a Client from the CoinGecko section of the configuration.
func New(cfg config.CoinGeckoConfig, log *zap.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      &http.Client{Timeout: cfg.Timeout()},
		cache:     cache.NewPriceCache(cfg.CacheTTL()),
		rateDelay: cfg.Delay(),
		log:       log,
	}
}

// FetchOne returns current price data for a single coin. The error
// distinguishes invalid input (ErrInvalidCoinID), unknown ids (ErrNotFound)
// and transport failures.
func (c *Client) FetchOne(ctx context.Context, coinID string) (models.PriceData, error) {
	if !validCoinID.MatchString(coinID) {
		return models.PriceData{}, fmt.Errorf("%w: %q", ErrInvalidCoinID, coinID)
	}

	if data, ok := c.cache.Get(coinID, priceEndpoint); ok {
		pd, found := data[coinID]
		if !found {
			return models.PriceData{}, fmt.Errorf("%w: %q", ErrNotFound, coinID)
		}
		return pd, nil
	}

	data, err := c.fetch(ctx, []string{coinID})
	c.sleepRateDelay(ctx)
	if err != nil {
		c.log.Error("Price fetch failed",
			zap.String("coin_id", coinID),
			zap.Error(err),
		)
		return models.PriceData{}, err
	}

	c.cache.Set(coinID, data)

	pd, found := data[coinID]
	if !found {
		return models.PriceData{}, fmt.Errorf("%w: %q", ErrNotFound, coinID)
	}
	return pd, nil
}

// FetchBatch returns price data for every valid, known id in coinIDs.
// Invalid ids are excluded silently; ids absent from the response are simply
// missing from the map. A transport or decode failure returns a nil map and
// the error; callers decide whether the cycle continues.
func (c *Client) FetchBatch(ctx context.Context, coinIDs []string) (map[string]models.PriceData, error) {
	ids, invalid := splitValidIDs(coinIDs)
	if len(invalid) > 0 {
		c.log.Debug("Excluding invalid coin ids from batch",
			zap.Strings("invalid_ids", invalid),
		)
	}
	if len(ids) == 0 {
		return map[string]models.PriceData{}, nil
	}

	key := strings.Join(ids, ",")
	if data, ok := c.cache.Get(key, priceEndpoint); ok {
		return data, nil
	}

	data, err := c.fetch(ctx, ids)
	c.sleepRateDelay(ctx)
	if err != nil {
		c.log.Error("Batch price fetch failed",
			zap.Strings("coin_ids", ids),
			zap.Error(err),
		)
		return nil, err
	}

	c.cache.Set(key, data)
	return data, nil
}

// splitValidIDs drops empty and malformed ids and canonicalizes the rest
// (sorted, deduplicated) so equal sets share one cache signature.
func splitValidIDs(coinIDs []string) (valid, invalid []string) {
	seen := make(map[string]bool, len(coinIDs))
	for _, id := range coinIDs {
		if !validCoinID.MatchString(id) {
			invalid = append(invalid, id)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		valid = append(valid, id)
	}
	sort.Strings(valid)
	return valid, invalid
}

func (c *Client) fetch(ctx context.Context, ids []string) (map[string]models.PriceData, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_vol", "true")
	q.Set("include_24hr_change", "true")
	endpoint := c.baseURL + "/" + priceEndpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		priceFetchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		priceFetchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("coingecko: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		priceFetchTotal.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("coingecko: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var data map[string]models.PriceData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		priceFetchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("coingecko: decode response: %w", err)
	}

	priceFetchTotal.WithLabelValues("success").Inc()
	return data, nil
}

// sleepRateDelay blocks for the configured delay after a real upstream call.
// Context cancellation cuts the sleep short.
func (c *Client) sleepRateDelay(ctx context.Context) {
	if c.rateDelay <= 0 {
		return
	}
	timer := time.NewTimer(c.rateDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
