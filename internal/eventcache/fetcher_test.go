package eventcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	calendar "google.golang.org/api/calendar/v3"
)

func newTestFetcher(t *testing.T, transport Transport, clock *fakeClock) (*Fetcher, *Store) {
	t.Helper()
	store := newTestStore(t, clock, 10)
	return NewFetcher(store, transport, nil, nil), store
}

func TestFetcher_MissThenHit(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.setEvents("primary", "sync-1", "1", "2")
	fetcher, store := newTestFetcher(t, transport, clock)
	ctx := context.Background()

	events, err := fetcher.Fetch(ctx, query("primary"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, eventIDs(events))

	entry, ok := store.Get(query("primary").Key())
	require.True(t, ok)
	assert.Equal(t, "sync-1", entry.SyncToken)

	clock.Advance(time.Minute)
	events, err = fetcher.Fetch(ctx, query("primary"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, eventIDs(events))
	assert.Equal(t, 1, transport.calls("primary"), "fresh entry must be served from cache")
	assert.Equal(t, 0, transport.syncCalls)
}

func TestFetcher_IncrementalNoChangeRefreshesEntry(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.setEvents("primary", "sync-1", "1")
	transport.incremental = func(resourceID, syncToken string) (*calendar.Events, error) {
		assert.Equal(t, "primary", resourceID)
		assert.Equal(t, "sync-1", syncToken)
		return &calendar.Events{NextSyncToken: "sync-2"}, nil
	}
	fetcher, store := newTestFetcher(t, transport, clock)
	ctx := context.Background()

	_, err := fetcher.Fetch(ctx, query("primary"))
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	events, err := fetcher.Fetch(ctx, query("primary"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, eventIDs(events))

	entry, ok := store.Get(query("primary").Key())
	require.True(t, ok)
	assert.Equal(t, clock.Now(), entry.FetchedAt, "revalidated entry is re-stamped")
	assert.Equal(t, "sync-2", entry.SyncToken)
	assert.Equal(t, []string{"1"}, eventIDs(entry.Events))
	assert.Equal(t, 1, transport.calls("primary"), "no full fetch after a no-op revalidation")
	assert.Equal(t, 1, transport.syncCalls)

	// Re-stamped entry is fresh again.
	_, result := store.Lookup(ctx, query("primary").Key())
	assert.Equal(t, LookupHit, result)
}

func TestFetcher_IncrementalKeepsTokenWhenNoneReturned(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.setEvents("primary", "sync-1", "1")
	transport.incremental = func(string, string) (*calendar.Events, error) {
		return &calendar.Events{}, nil
	}
	fetcher, store := newTestFetcher(t, transport, clock)

	_, err := fetcher.Fetch(context.Background(), query("primary"))
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)
	_, err = fetcher.Fetch(context.Background(), query("primary"))
	require.NoError(t, err)

	entry, _ := store.Get(query("primary").Key())
	assert.Equal(t, "sync-1", entry.SyncToken)
}

func TestFetcher_StaleFallsBackToFullFetch(t *testing.T) {
	tests := []struct {
		name        string
		incremental func(string, string) (*calendar.Events, error)
	}{
		{
			name: "changes reported",
			incremental: func(string, string) (*calendar.Events, error) {
				return &calendar.Events{Items: []*calendar.Event{{Id: "3"}}, NextSyncToken: "sync-x"}, nil
			},
		},
		{
			name: "more pages",
			incremental: func(string, string) (*calendar.Events, error) {
				return &calendar.Events{NextPageToken: "page-2"}, nil
			},
		},
		{
			name: "token expired",
			incremental: func(string, string) (*calendar.Events, error) {
				return nil, ErrTokenExpired
			},
		},
		{
			name: "other error",
			incremental: func(string, string) (*calendar.Events, error) {
				return nil, errors.New("backend unavailable")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			transport := newFakeTransport()
			transport.setEvents("primary", "sync-1", "1")
			fetcher, store := newTestFetcher(t, transport, clock)
			ctx := context.Background()

			_, err := fetcher.Fetch(ctx, query("primary"))
			require.NoError(t, err)

			transport.setEvents("primary", "sync-2", "1", "3")
			transport.incremental = tt.incremental
			clock.Advance(4 * time.Minute)

			events, err := fetcher.Fetch(ctx, query("primary"))
			require.NoError(t, err)
			assert.Equal(t, []string{"1", "3"}, eventIDs(events))
			assert.Equal(t, 2, transport.calls("primary"))

			entry, _ := store.Get(query("primary").Key())
			assert.Equal(t, "sync-2", entry.SyncToken)
			assert.Equal(t, clock.Now(), entry.FetchedAt)
		})
	}
}

func TestFetcher_StaleWithoutTokenSkipsRevalidation(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.setEvents("primary", "", "1")
	fetcher, _ := newTestFetcher(t, transport, clock)

	_, err := fetcher.Fetch(context.Background(), query("primary"))
	require.NoError(t, err)
	clock.Advance(4 * time.Minute)
	_, err = fetcher.Fetch(context.Background(), query("primary"))
	require.NoError(t, err)

	assert.Equal(t, 0, transport.syncCalls)
	assert.Equal(t, 2, transport.calls("primary"))
}

func TestFetcher_FullFetchError(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	upstream := errors.New("403 forbidden")
	transport.errs["secret"] = upstream
	fetcher, store := newTestFetcher(t, transport, clock)

	_, err := fetcher.Fetch(context.Background(), query("secret"))
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "secret", fetchErr.ResourceID)
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, 0, store.Len(), "failures are not cached")
}

func TestFetcher_CoalescesConcurrentCalls(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.setEvents("primary", "sync-1", "1")
	transport.delays["primary"] = 50 * time.Millisecond
	fetcher, _ := newTestFetcher(t, transport, clock)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := fetcher.Fetch(context.Background(), query("primary"))
			assert.NoError(t, err)
			assert.Equal(t, []string{"1"}, eventIDs(events))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transport.calls("primary"))
}

func TestFetcher_CancelledCallerDoesNotFailOthers(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.setEvents("primary", "sync-1", "1")
	transport.delays["primary"] = 100 * time.Millisecond
	fetcher, store := newTestFetcher(t, transport, clock)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := fetcher.Fetch(firstCtx, query("primary"))
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return transport.calls("primary") == 1 },
		time.Second, time.Millisecond)

	type outcome struct {
		events []Event
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		events, err := fetcher.Fetch(context.Background(), query("primary"))
		second <- outcome{events, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, []string{"1"}, eventIDs(got.events))
	assert.Equal(t, 1, transport.calls("primary"))
	assert.Equal(t, 1, store.Len(), "shared fetch completes and is cached")
}

func TestTrimEvent(t *testing.T) {
	event := TrimEvent(&calendar.Event{
		Id:          "e1",
		Summary:     "Offsite",
		Start:       &calendar.EventDateTime{Date: "2025-03-03"},
		End:         &calendar.EventDateTime{Date: "2025-03-04"},
		Location:    "Berlin",
		Description: "All hands",
		Status:      "confirmed",
		Attendees: []*calendar.EventAttendee{
			{Email: "jane@example.com", DisplayName: "Jane", ResponseStatus: "accepted"},
			{Email: "bob@example.com", ResponseStatus: "needsAction", Self: true},
			nil,
		},
	})

	assert.Equal(t, Event{
		ID:          "e1",
		Summary:     "Offsite",
		Start:       "2025-03-03",
		End:         "2025-03-04",
		Location:    "Berlin",
		Description: "All hands",
		Attendees: []Attendee{
			{DisplayName: "Jane", ResponseStatus: "accepted"},
			{DisplayName: "bob@example.com", ResponseStatus: "needsAction", Self: true},
		},
	}, event)

	assert.Equal(t, Event{}, TrimEvent(nil))
	assert.Empty(t, TrimEvents([]*calendar.Event{nil}))
}
