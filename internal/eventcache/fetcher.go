package eventcache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/gcal-mcp/internal/instrumentation"
	"github.com/teemow/gcal-mcp/internal/logging"
)

// Revalidation outcomes, also used as metric attribute values.
const (
	RevalidateUnchanged = "unchanged"
	RevalidateChanged   = "changed"
	RevalidateExpired   = "expired"
	RevalidateFailed    = "failed"
)

// Fetcher resolves a single calendar's events: fresh cache entry, then
// sync-token revalidation, then a full fetch.
type Fetcher struct {
	store     *Store
	transport Transport
	logger    *slog.Logger
	metrics   *instrumentation.Metrics

	group singleflight.Group
}

// NewFetcher creates a Fetcher reading and writing through store.
func NewFetcher(store *Store, transport Transport, logger *slog.Logger, metrics *instrumentation.Metrics) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		store:     store,
		transport: transport,
		logger:    logging.WithService(logger, "eventcache.fetcher"),
		metrics:   metrics,
	}
}

// Fetch returns the events of q. Concurrent calls for the same query share
// one upstream round-trip, which is not cancelled with any single caller;
// each caller stops waiting when its own ctx is done.
func (f *Fetcher) Fetch(ctx context.Context, q Query) ([]Event, error) {
	flightKey := q.Key().String() + "|" + strconv.FormatInt(q.MaxResults, 10)
	shared := context.WithoutCancel(ctx)

	ch := f.group.DoChan(flightKey, func() (interface{}, error) {
		return f.fetch(shared, q)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Event), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context, q Query) ([]Event, error) {
	key := q.Key()
	logger := f.logger.With(logging.Calendar(q.ResourceID))

	entry, result := f.store.Lookup(ctx, key)
	switch result {
	case LookupHit:
		return entry.Events, nil
	case LookupStale:
		if entry.SyncToken != "" {
			if events, ok := f.revalidate(ctx, key, entry, logger); ok {
				return events, nil
			}
		}
	}

	return f.fullFetch(ctx, q, logger)
}

// revalidate asks for changes since the entry's sync token. It reports true
// only when nothing changed, in which case the entry is re-stamped.
func (f *Fetcher) revalidate(ctx context.Context, key Key, entry Entry, logger *slog.Logger) ([]Event, bool) {
	page, err := f.transport.ListEventsIncremental(ctx, key.ResourceID, entry.SyncToken)
	if err != nil {
		outcome := RevalidateFailed
		if errors.Is(err, ErrTokenExpired) {
			outcome = RevalidateExpired
		} else {
			logger.Warn("incremental sync failed, falling back to full fetch", logging.Err(err))
		}
		f.metrics.RecordRevalidation(ctx, outcome)
		return nil, false
	}

	if len(page.Items) > 0 || page.NextPageToken != "" {
		f.metrics.RecordRevalidation(ctx, RevalidateChanged)
		return nil, false
	}

	token := entry.SyncToken
	if page.NextSyncToken != "" {
		token = page.NextSyncToken
	}
	f.store.Put(key, entry.Events, token)
	f.metrics.RecordRevalidation(ctx, RevalidateUnchanged)
	logger.Debug("cache entry revalidated",
		slog.Int("events", len(entry.Events)),
		slog.String("sync_token", logging.SanitizeToken(token)))

	return entry.Events, true
}

func (f *Fetcher) fullFetch(ctx context.Context, q Query, logger *slog.Logger) ([]Event, error) {
	page, err := f.transport.ListEvents(ctx, q, EventFields)
	if err != nil {
		return nil, &FetchError{ResourceID: q.ResourceID, Err: err}
	}

	events := TrimEvents(page.Items)
	f.store.Put(q.Key(), events, page.NextSyncToken)
	logger.Debug("fetched events", slog.Int("events", len(events)))

	return events, nil
}
