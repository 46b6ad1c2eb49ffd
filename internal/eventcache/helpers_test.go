package eventcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	calendar "google.golang.org/api/calendar/v3"
)

const (
	testRangeStart = "2025-03-01T00:00:00Z"
	testRangeEnd   = "2025-03-08T00:00:00Z"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTransport serves fixed pages per calendar and counts calls.
type fakeTransport struct {
	mu sync.Mutex

	pages       map[string]*calendar.Events
	errs        map[string]error
	delays      map[string]time.Duration
	incremental func(resourceID, syncToken string) (*calendar.Events, error)

	listCalls map[string]int
	syncCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		pages:     map[string]*calendar.Events{},
		errs:      map[string]error{},
		delays:    map[string]time.Duration{},
		listCalls: map[string]int{},
	}
}

func (f *fakeTransport) setEvents(resourceID, syncToken string, ids ...string) {
	page := &calendar.Events{NextSyncToken: syncToken}
	for _, id := range ids {
		page.Items = append(page.Items, &calendar.Event{
			Id:      id,
			Summary: "event " + id,
			Start:   &calendar.EventDateTime{DateTime: "2025-03-02T10:00:00Z"},
			End:     &calendar.EventDateTime{DateTime: "2025-03-02T11:00:00Z"},
		})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[resourceID] = page
}

func (f *fakeTransport) ListEvents(ctx context.Context, q Query, _ string) (*calendar.Events, error) {
	f.mu.Lock()
	f.listCalls[q.ResourceID]++
	delay := f.delays[q.ResourceID]
	err := f.errs[q.ResourceID]
	page := f.pages[q.ResourceID]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if page == nil {
		return &calendar.Events{}, nil
	}
	return page, nil
}

func (f *fakeTransport) ListEventsIncremental(_ context.Context, resourceID, syncToken string) (*calendar.Events, error) {
	f.mu.Lock()
	f.syncCalls++
	fn := f.incremental
	f.mu.Unlock()

	if fn == nil {
		return &calendar.Events{NextSyncToken: syncToken}, nil
	}
	return fn(resourceID, syncToken)
}

func (f *fakeTransport) calls(resourceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[resourceID]
}

func (f *fakeTransport) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.listCalls {
		n += c
	}
	return n
}

// fakeBatchTransport answers batches from the same pages as fakeTransport.
// respond, when set, replaces the default positional answer.
type fakeBatchTransport struct {
	*fakeTransport

	respond func(queries []string, boundary string) (*BatchHTTPResponse, error)
	batches [][]string
}

func newFakeBatchTransport() *fakeBatchTransport {
	return &fakeBatchTransport{fakeTransport: newFakeTransport()}
}

var batchPathPattern = regexp.MustCompile(`GET /calendar/v3/calendars/([^/]+)/events\?`)

func (f *fakeBatchTransport) SendBatchRequest(_ context.Context, body []byte, boundary string) (*BatchHTTPResponse, error) {
	var ids []string
	for _, m := range batchPathPattern.FindAllStringSubmatch(string(body), -1) {
		id, err := url.PathUnescape(m[1])
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	f.mu.Lock()
	f.batches = append(f.batches, ids)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(ids, boundary)
	}

	var parts []testPart
	for _, id := range ids {
		f.mu.Lock()
		page := f.pages[id]
		f.mu.Unlock()
		if page == nil {
			parts = append(parts, testPart{status: 404, body: `{"error":{"code":404,"message":"Not Found"}}`})
			continue
		}
		data, err := json.Marshal(page)
		if err != nil {
			return nil, err
		}
		parts = append(parts, testPart{status: 200, body: string(data)})
	}
	return batchResponse("batch_resp", parts...), nil
}

func (f *fakeBatchTransport) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type testPart struct {
	status int
	body   string
}

// batchResponse renders parts the way the batch endpoint does.
func batchResponse(boundary string, parts ...testPart) *BatchHTTPResponse {
	var b strings.Builder
	b.WriteString("preamble is ignored\r\n")
	for i, p := range parts {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: application/http\r\n")
		fmt.Fprintf(&b, "Content-ID: <response-item-%d>\r\n\r\n", i+1)
		fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", p.status, statusText(p.status))
		b.WriteString("Content-Type: application/json; charset=UTF-8\r\n\r\n")
		b.WriteString(p.body)
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return &BatchHTTPResponse{
		StatusCode:  200,
		ContentType: "multipart/mixed; boundary=" + boundary,
		Body:        []byte(b.String()),
	}
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 404:
		return "Not Found"
	default:
		return "Error"
	}
}

func eventIDs(events []Event) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}

func newTestEngine(t *testing.T, transport Transport, clock *fakeClock, mutate ...func(*Config)) *Engine {
	t.Helper()

	config := Config{Now: clock.Now}
	for _, m := range mutate {
		m(&config)
	}

	engine, err := New(transport, config)
	require.NoError(t, err)
	return engine
}

func query(resourceID string) Query {
	return Query{ResourceID: resourceID, RangeStart: testRangeStart, RangeEnd: testRangeEnd, MaxResults: 10}
}
