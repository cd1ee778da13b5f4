package cache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cryptoalert/internal/models"
)

var (
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"endpoint"},
	)
	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
}

type entry struct {
	data      map[string]models.PriceData
	expiresAt time.Time
}

// PriceCache holds price API responses keyed by call signature for a fixed
// TTL. Entries are immutable for their window; a refetch replaces the whole
// entry. Safe for concurrent use.
type PriceCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// NewPriceCache creates a cache whose entries expire after ttl.
// A non-positive ttl disables caching entirely.
func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached response for key, if still fresh.
// The endpoint label feeds the hit/miss counters.
func (c *PriceCache) Get(key, endpoint string) (map[string]models.PriceData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		if ok {
			delete(c.entries, key)
		}
		cacheMissesTotal.WithLabelValues(endpoint).Inc()
		return nil, false
	}

	cacheHitsTotal.WithLabelValues(endpoint).Inc()
	out := make(map[string]models.PriceData, len(e.data))
	for id, data := range e.data {
		out[id] = data
	}
	return out, true
}

// Set stores a response under key. The map is copied so later caller
// mutations cannot reach the cached entry.
func (c *PriceCache) Set(key string, data map[string]models.PriceData) {
	if c.ttl <= 0 {
		return
	}

	stored := make(map[string]models.PriceData, len(data))
	for id, d := range data {
		stored[id] = d
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{data: stored, expiresAt: c.now().Add(c.ttl)}
}

// Len reports how many entries are currently stored, expired or not.
func (c *PriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
