package eventcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/teemow/gcal-mcp/internal/instrumentation"
	"github.com/teemow/gcal-mcp/internal/logging"
)

const (
	// DefaultTTL is how long a cached result set is served without revalidation.
	DefaultTTL = 3 * time.Minute

	// DefaultMaxEntries bounds the number of cached (calendar, range) result sets.
	DefaultMaxEntries = 100
)

// Lookup results, also used as metric attribute values.
const (
	LookupHit   = "hit"
	LookupStale = "stale"
	LookupMiss  = "miss"
)

// Key identifies a cached result set.
type Key struct {
	ResourceID string
	RangeStart string
	RangeEnd   string
}

// String renders the key for logs.
func (k Key) String() string {
	return k.ResourceID + "|" + k.RangeStart + "|" + k.RangeEnd
}

// Entry is a cached result set.
type Entry struct {
	Events    []Event
	FetchedAt time.Time
	SyncToken string
}

// StoreConfig configures a Store. Zero values select the defaults.
type StoreConfig struct {
	TTL        time.Duration
	MaxEntries int

	// Now overrides the clock, mostly for tests.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// StoreStats is a point-in-time view of the store counters.
type StoreStats struct {
	Entries    int           `json:"entries"`
	MaxEntries int           `json:"maxEntries"`
	TTL        time.Duration `json:"ttl"`
	Hits       uint64        `json:"hits"`
	Stale      uint64        `json:"stale"`
	Misses     uint64        `json:"misses"`
	Evictions  uint64        `json:"evictions"`
}

// Store is an in-memory cache of event result sets. It evicts in write order:
// reads never change an entry's position, and rewriting an entry makes it the
// newest one.
type Store struct {
	mu      sync.RWMutex
	entries *simplelru.LRU[Key, Entry]

	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger
	metrics    *instrumentation.Metrics

	hits      atomic.Uint64
	stale     atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewStore creates an empty Store.
func NewStore(config StoreConfig) (*Store, error) {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Store{
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        config.Now,
		logger:     logging.WithService(config.Logger, "eventcache.store"),
		metrics:    config.Metrics,
	}

	entries, err := simplelru.NewLRU[Key, Entry](config.MaxEntries, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}
	s.entries = entries

	return s, nil
}

// onEvict runs under s.mu for capacity evictions and explicit removals.
func (s *Store) onEvict(key Key, _ Entry) {
	s.logger.Debug("cache entry removed", logging.Calendar(key.ResourceID), slog.String("range_start", key.RangeStart))
}

// Get returns the entry for key if present. It does not check freshness.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Peek(key)
}

// Fresh reports whether entry is still within the TTL.
func (s *Store) Fresh(entry Entry) bool {
	return s.now().Sub(entry.FetchedAt) < s.ttl
}

// Lookup is Get plus freshness classification. It feeds the hit/stale/miss
// counters and metrics.
func (s *Store) Lookup(ctx context.Context, key Key) (Entry, string) {
	entry, ok := s.Get(key)

	result := LookupMiss
	switch {
	case !ok:
		s.misses.Add(1)
	case s.Fresh(entry):
		result = LookupHit
		s.hits.Add(1)
	default:
		result = LookupStale
		s.stale.Add(1)
	}

	s.metrics.RecordCacheLookup(ctx, result)
	return entry, result
}

// Put stores events under key, stamped with the current time.
// When the store is full the oldest-written entry is evicted.
func (s *Store) Put(key Key, events []Event, syncToken string) {
	entry := Entry{
		Events:    events,
		FetchedAt: s.now(),
		SyncToken: syncToken,
	}

	s.mu.Lock()
	evicted := s.entries.Add(key, entry)
	s.mu.Unlock()

	if evicted {
		s.evictions.Add(1)
		s.metrics.RecordCacheEviction(context.Background())
	}
}

// InvalidateResource removes every entry of resourceID, whatever its range,
// and returns how many were removed.
func (s *Store) InvalidateResource(resourceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range s.entries.Keys() {
		if key.ResourceID != resourceID {
			continue
		}
		if s.entries.Remove(key) {
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Len()
}

// Purge drops every entry.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Purge()
}

// Stats returns the current counters.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Entries:    s.Len(),
		MaxEntries: s.maxEntries,
		TTL:        s.ttl,
		Hits:       s.hits.Load(),
		Stale:      s.stale.Load(),
		Misses:     s.misses.Load(),
		Evictions:  s.evictions.Load(),
	}
}
