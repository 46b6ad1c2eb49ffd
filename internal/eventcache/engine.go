package eventcache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/gcal-mcp/internal/instrumentation"
	"github.com/teemow/gcal-mcp/internal/logging"
)

// DefaultFetchConcurrency bounds the parallel single fetches used when a
// batch cannot be sent or decoded.
const DefaultFetchConcurrency = 8

// Batch outcomes, also used as metric attribute values.
const (
	BatchSuccess     = "success"
	BatchFallback    = "fallback"
	BatchUnsupported = "unsupported"
)

// Config configures an Engine. Zero values select the defaults.
type Config struct {
	TTL              time.Duration
	MaxEntries       int
	MaxBatchSize     int
	FetchConcurrency int

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Engine answers single and multi-calendar event queries from a shared Store.
type Engine struct {
	store   *Store
	fetcher *Fetcher
	batch   *BatchClient

	maxBatchSize     int
	fetchConcurrency int

	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// New creates an Engine on top of transport. Batching is used when transport
// also implements BatchTransport.
func New(transport Transport, config Config) (*Engine, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxBatchSize <= 0 || config.MaxBatchSize > DefaultMaxBatchSize {
		config.MaxBatchSize = DefaultMaxBatchSize
	}
	if config.FetchConcurrency <= 0 {
		config.FetchConcurrency = DefaultFetchConcurrency
	}

	store, err := NewStore(StoreConfig{
		TTL:        config.TTL,
		MaxEntries: config.MaxEntries,
		Now:        config.Now,
		Logger:     config.Logger,
		Metrics:    config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:            store,
		fetcher:          NewFetcher(store, transport, config.Logger, config.Metrics),
		maxBatchSize:     config.MaxBatchSize,
		fetchConcurrency: config.FetchConcurrency,
		logger:           logging.WithService(config.Logger, "eventcache"),
		metrics:          config.Metrics,
	}
	if bt, ok := transport.(BatchTransport); ok {
		e.batch = NewBatchClient(bt, config.Logger, config.Metrics)
	}

	return e, nil
}

// Store returns the engine's cache.
func (e *Engine) Store() *Store {
	return e.store
}

// Fetch returns the events of a single calendar.
func (e *Engine) Fetch(ctx context.Context, q Query) ([]Event, error) {
	return e.fetcher.Fetch(ctx, q)
}

// Invalidate drops every cached range of resourceID. It is called after
// writes to that calendar.
func (e *Engine) Invalidate(resourceID string) int {
	n := e.store.InvalidateResource(resourceID)
	if n > 0 {
		e.logger.Debug("invalidated cache entries", logging.Calendar(resourceID), slog.Int("entries", n))
	}
	return n
}

// FetchMany returns the events of every calendar in ids over the same range.
// Results are in the order of ids. Per-calendar failures are reported in
// CalendarResult.Err and never fail the whole call.
func (e *Engine) FetchMany(ctx context.Context, ids []string, rangeStart, rangeEnd string, maxResults int64) []CalendarResult {
	results := make([]CalendarResult, len(ids))
	if len(ids) == 0 {
		return results
	}

	ctx, span := instrumentation.StartSpan(ctx, "eventcache.FetchMany")
	defer span.End()

	resolved := make(map[string]CalendarResult, len(ids))
	var misses []Query
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		q := Query{ResourceID: id, RangeStart: rangeStart, RangeEnd: rangeEnd, MaxResults: maxResults}
		entry, result := e.store.Lookup(ctx, q.Key())
		if result == LookupHit {
			resolved[id] = CalendarResult{ResourceID: id, Events: entry.Events}
			continue
		}
		misses = append(misses, q)
	}

	for start := 0; start < len(misses); start += e.maxBatchSize {
		end := start + e.maxBatchSize
		if end > len(misses) {
			end = len(misses)
		}
		for _, r := range e.fetchChunk(ctx, misses[start:end]) {
			resolved[r.ResourceID] = r
		}
	}

	for i, id := range ids {
		r, ok := resolved[id]
		if !ok {
			r = CalendarResult{ResourceID: id, Events: []Event{}}
		}
		results[i] = r
	}

	return results
}

// fetchChunk resolves at most maxBatchSize queries, by batch when possible
// and otherwise by parallel single fetches.
func (e *Engine) fetchChunk(ctx context.Context, queries []Query) []CalendarResult {
	if e.batch == nil {
		e.metrics.RecordBatchRequest(ctx, BatchUnsupported, len(queries))
		return e.fetchParallel(ctx, queries, ErrBatchUnsupported)
	}

	responses, err := e.batch.SendBatch(ctx, queries)
	if err != nil {
		e.metrics.RecordBatchRequest(ctx, BatchFallback, len(queries))
		return e.fetchParallel(ctx, queries, err)
	}
	e.metrics.RecordBatchRequest(ctx, BatchSuccess, len(queries))

	results := make([]CalendarResult, len(responses))
	for i, resp := range responses {
		results[i] = CalendarResult{ResourceID: resp.ResourceID, Events: resp.Events}
		switch {
		case resp.Err != nil:
			results[i].Err = resp.Err
			results[i].Events = nil
		case resp.Missing:
			e.logger.Warn("no batch response part for calendar", logging.Calendar(resp.ResourceID))
		default:
			e.store.Put(queries[i].Key(), resp.Events, resp.SyncToken)
		}
	}
	return results
}

func (e *Engine) fetchParallel(ctx context.Context, queries []Query, cause error) []CalendarResult {
	if errors.Is(cause, ErrBatchUnsupported) {
		e.logger.Debug("fetching calendars individually", slog.Int("calendars", len(queries)))
	} else {
		e.logger.Warn("batch request failed, fetching calendars individually",
			slog.Int("calendars", len(queries)),
			logging.Err(cause))
	}

	results := make([]CalendarResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fetchConcurrency)
	for i, q := range queries {
		g.Go(func() error {
			events, err := e.fetcher.Fetch(gctx, q)
			results[i] = CalendarResult{ResourceID: q.ResourceID, Events: events, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
