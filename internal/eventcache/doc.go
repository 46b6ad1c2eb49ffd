// Package eventcache serves calendar event queries from an in-memory cache
// backed by the Google Calendar API.
//
// A query is a calendar ID plus a time range. Results are cached per
// (calendar, range) for a short TTL. Once an entry is stale it is revalidated
// with the sync token returned by the previous fetch: when the API reports no
// changes the cached events are kept and re-stamped, otherwise the range is
// fetched again.
//
// Engine.FetchMany resolves several calendars at once. Fresh entries are
// answered from the cache; the rest are sent as one multipart batch request
// (split into chunks of at most DefaultMaxBatchSize) and the response parts
// are matched to calendars by position. If a batch cannot be sent or decoded
// the calendars of that chunk are fetched individually in parallel. Results
// always come back in the order of the requested IDs, and a failure for one
// calendar never fails the others.
//
//	engine, err := eventcache.New(client, eventcache.Config{})
//	if err != nil {
//	    return err
//	}
//	results := engine.FetchMany(ctx, []string{"primary", "team@example.com"},
//	    "2025-03-01T00:00:00Z", "2025-03-08T00:00:00Z", 50)
package eventcache
