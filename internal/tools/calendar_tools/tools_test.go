package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gcal-mcp/internal/calendar"
	"github.com/teemow/gcal-mcp/internal/server"
)

var batchGetLine = regexp.MustCompile(`GET /calendar/v3/calendars/([^/]+)/events\?`)

// fakeCalendarAPI serves the subset of the Calendar API the tools use.
type fakeCalendarAPI struct {
	mu         sync.Mutex
	events     map[string]string // calendar ID -> items JSON array
	listCalls  map[string]int
	batchCalls int
	lastQuery  url.Values
	deleted    []string
	patches    []map[string]interface{}
}

func newFakeCalendarAPI() *fakeCalendarAPI {
	return &fakeCalendarAPI{
		events: map[string]string{
			"primary":          `[{"id":"e1","summary":"Standup","start":{"dateTime":"2025-03-03T09:00:00Z"},"end":{"dateTime":"2025-03-03T09:15:00Z"}}]`,
			"team@example.com": `[{"id":"t1","summary":"Planning","start":{"date":"2025-03-04"},"end":{"date":"2025-03-05"}}]`,
		},
		listCalls: make(map[string]int),
	}
}

func (f *fakeCalendarAPI) setEvents(calendarID, items string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[calendarID] = items
}

func (f *fakeCalendarAPI) calls(calendarID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[calendarID]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case r.URL.Path == "/batch/calendar/v3":
		f.serveBatch(w, r)

	case r.URL.Path == "/users/me/calendarList":
		writeJSON(w, http.StatusOK, `{"items":[`+
			`{"id":"primary@example.com","summary":"Me","primary":true,"accessRole":"owner","backgroundColor":"#9fe1e7"},`+
			`{"id":"team@example.com","summary":"Team","accessRole":"reader"}]}`)

	case len(parts) == 3 && parts[0] == "calendars" && parts[2] == "events" && r.Method == http.MethodGet:
		f.listCalls[parts[1]]++
		f.lastQuery = r.URL.Query()
		items, ok := f.events[parts[1]]
		if !ok {
			writeJSON(w, http.StatusNotFound, `{"error":{"code":404,"message":"Not Found"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"items":`+items+`,"nextSyncToken":"sync-`+parts[1]+`"}`)

	case len(parts) == 3 && parts[0] == "calendars" && parts[2] == "events" && r.Method == http.MethodPost:
		writeJSON(w, http.StatusOK, `{"id":"new1","htmlLink":"https://calendar.google.com/event?eid=new1"}`)

	case len(parts) == 4 && parts[0] == "calendars" && parts[2] == "events":
		eventID := parts[3]
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, `{"id":"`+eventID+`","summary":"Standup","status":"confirmed"}`)
		case http.MethodPatch:
			var patch map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&patch)
			f.patches = append(f.patches, patch)
			writeJSON(w, http.StatusOK, `{"id":"`+eventID+`"}`)
		case http.MethodDelete:
			if eventID == "missing" {
				writeJSON(w, http.StatusNotFound, `{"error":{"code":404,"message":"Not Found"}}`)
				return
			}
			f.deleted = append(f.deleted, eventID)
			w.WriteHeader(http.StatusNoContent)
		}

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeCalendarAPI) serveBatch(w http.ResponseWriter, r *http.Request) {
	f.batchCalls++
	body, _ := io.ReadAll(r.Body)

	var resp strings.Builder
	for _, m := range batchGetLine.FindAllStringSubmatch(string(body), -1) {
		id, _ := url.PathUnescape(m[1])
		resp.WriteString("--resp\r\nContent-Type: application/http\r\n\r\n")
		if items, ok := f.events[id]; ok {
			fmt.Fprintf(&resp, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"items\":%s,\"nextSyncToken\":\"sync-%s\"}\r\n", items, id)
		} else {
			resp.WriteString("HTTP/1.1 404 Not Found\r\nContent-Type: application/json\r\n\r\n{\"error\":{\"code\":404,\"message\":\"Not Found\"}}\r\n")
		}
	}
	resp.WriteString("--resp--\r\n")

	w.Header().Set("Content-Type", "multipart/mixed; boundary=resp")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, resp.String())
}

func newTestServerContext(t *testing.T) (*server.ServerContext, *fakeCalendarAPI) {
	t.Helper()

	api := newFakeCalendarAPI()
	httpServer := httptest.NewServer(api)
	t.Cleanup(httpServer.Close)

	sc, err := server.NewServerContext(context.Background(), server.Config{
		CredentialsPath: t.TempDir() + "/credentials.json",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	client, err := calendar.NewClient(context.Background(), "default", httpServer.Client(),
		calendar.WithEndpoint(httpServer.URL+"/"),
		calendar.WithBatchURL(httpServer.URL+"/batch/calendar/v3"),
		calendar.WithRateLimit(0, 0),
	)
	require.NoError(t, err)
	sc.SetCalendarClientForAccount("default", client)

	return sc, api
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func listArgs(extra map[string]interface{}) map[string]interface{} {
	args := map[string]interface{}{
		"timeMin": "2025-03-01T00:00:00Z",
		"timeMax": "2025-03-08T00:00:00Z",
	}
	for k, v := range extra {
		args[k] = v
	}
	return args
}

func TestRegisterCalendarTools(t *testing.T) {
	tests := []struct {
		name     string
		readOnly bool
		want     []string
	}{
		{
			name:     "read-only",
			readOnly: true,
			want: []string{
				"calendar_cache_stats", "calendar_get_event", "calendar_list_calendars",
				"calendar_list_events", "calendar_list_events_multi",
			},
		},
		{
			name: "read-write",
			want: []string{
				"calendar_cache_stats", "calendar_create_event", "calendar_delete_event",
				"calendar_get_event", "calendar_list_calendars", "calendar_list_events",
				"calendar_list_events_multi", "calendar_update_event",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, _ := newTestServerContext(t)
			s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))
			require.NoError(t, RegisterCalendarTools(s, sc, tt.readOnly))

			var names []string
			for name := range s.ListTools() {
				names = append(names, name)
			}
			sort.Strings(names)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestHandleListEvents_UsesCache(t *testing.T) {
	sc, api := newTestServerContext(t)
	ctx := context.Background()

	result, err := handleListEvents(ctx, callRequest(listArgs(nil)), sc)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Found 1 events (calendar: primary):\n"), text)
	assert.Contains(t, text, `"summary": "Standup"`)
	assert.Equal(t, "10", api.lastQuery.Get("maxResults"), "maxResults defaults to 10")
	assert.Equal(t, "startTime", api.lastQuery.Get("orderBy"))

	_, err = handleListEvents(ctx, callRequest(listArgs(nil)), sc)
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls("primary"), "second call is served from the cache")
}

func TestHandleListEvents_Validation(t *testing.T) {
	sc, api := newTestServerContext(t)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing timeMin", map[string]interface{}{"timeMax": "2025-03-08T00:00:00Z"}, "timeMin is required"},
		{"bad timeMax", listArgs(map[string]interface{}{"timeMax": "next week"}), "invalid timeMax format"},
		{"bad maxResults", listArgs(map[string]interface{}{"maxResults": float64(-3)}), "maxResults must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handleListEvents(context.Background(), callRequest(tt.args), sc)
			require.NoError(t, err, "tool errors are results, not Go errors")
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
	assert.Equal(t, 0, api.calls("primary"))
}

func TestHandleListEvents_UnknownAccount(t *testing.T) {
	sc, _ := newTestServerContext(t)

	result, err := handleListEvents(context.Background(), callRequest(listArgs(map[string]interface{}{"account": "nobody"})), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), `account "nobody"`)
}

func TestHandleListEventsMulti(t *testing.T) {
	sc, api := newTestServerContext(t)

	result, err := handleListEventsMulti(context.Background(), callRequest(listArgs(map[string]interface{}{
		"calendarIds": `["team@example.com", "missing", "primary"]`,
		"maxResults":  float64(5),
	})), sc)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var decoded struct {
		Total      int `json:"total"`
		Successful int `json:"successful"`
		Failed     int `json:"failed"`
		Calendars  []struct {
			CalendarID string `json:"calendarId"`
			Events     []struct {
				ID string `json:"id"`
			} `json:"events"`
			Error string `json:"error"`
		} `json:"calendars"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))

	assert.Equal(t, 3, decoded.Total)
	assert.Equal(t, 2, decoded.Successful)
	assert.Equal(t, 1, decoded.Failed)
	require.Len(t, decoded.Calendars, 3)
	assert.Equal(t, "team@example.com", decoded.Calendars[0].CalendarID)
	assert.Equal(t, "t1", decoded.Calendars[0].Events[0].ID)
	assert.Equal(t, "missing", decoded.Calendars[1].CalendarID)
	assert.Equal(t, "Not Found", decoded.Calendars[1].Error)
	assert.Equal(t, "primary", decoded.Calendars[2].CalendarID)
	assert.Equal(t, "e1", decoded.Calendars[2].Events[0].ID)

	assert.Equal(t, 1, api.batchCalls)
	assert.Equal(t, 0, api.calls("primary"), "no single fetches when the batch succeeds")
}

func TestHandleListEventsMulti_RequiresIDs(t *testing.T) {
	sc, _ := newTestServerContext(t)

	result, err := handleListEventsMulti(context.Background(), callRequest(listArgs(nil)), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "calendarIds is required")
}

func TestWriteToolsInvalidateCache(t *testing.T) {
	sc, api := newTestServerContext(t)
	ctx := context.Background()

	_, err := handleListEvents(ctx, callRequest(listArgs(nil)), sc)
	require.NoError(t, err)
	require.Equal(t, 1, api.calls("primary"))

	result, err := handleCreateEvent(ctx, callRequest(map[string]interface{}{
		"summary":   "Retro",
		"start":     "2025-03-05T10:00:00Z",
		"end":       "2025-03-05T11:00:00Z",
		"attendees": "a@example.com, b@example.com",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	assert.Contains(t, resultText(t, result), "Event created with ID: new1")

	api.setEvents("primary", `[{"id":"e1"},{"id":"new1","summary":"Retro"}]`)
	result, err = handleListEvents(ctx, callRequest(listArgs(nil)), sc)
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls("primary"), "create drops the cached ranges of the calendar")
	assert.Contains(t, resultText(t, result), "Found 2 events")

	result, err = handleUpdateEvent(ctx, callRequest(map[string]interface{}{"eventId": "new1", "summary": "Retro (moved)"}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	require.Len(t, api.patches, 1)
	assert.Equal(t, map[string]interface{}{"summary": "Retro (moved)"}, api.patches[0], "only given fields are sent")

	_, err = handleListEvents(ctx, callRequest(listArgs(nil)), sc)
	require.NoError(t, err)
	assert.Equal(t, 3, api.calls("primary"))
}

func TestHandleUpdateEvent_RequiresChange(t *testing.T) {
	sc, api := newTestServerContext(t)

	result, err := handleUpdateEvent(context.Background(), callRequest(map[string]interface{}{"eventId": "e1"}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, api.patches)
}

func TestHandleDeleteEvent(t *testing.T) {
	sc, api := newTestServerContext(t)
	ctx := context.Background()

	result, err := handleDeleteEvent(ctx, callRequest(map[string]interface{}{"eventId": "e1"}), sc)
	require.NoError(t, err)
	assert.Equal(t, "Event deleted: e1 (calendar: primary)", resultText(t, result))

	result, err = handleDeleteEvent(ctx, callRequest(map[string]interface{}{"eventId": []interface{}{"e2", "missing"}}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var br struct {
		Total      int `json:"total"`
		Successful int `json:"successful"`
		Failed     int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &br))
	assert.Equal(t, 2, br.Total)
	assert.Equal(t, 1, br.Successful)
	assert.Equal(t, 1, br.Failed)
	assert.Equal(t, []string{"e1", "e2"}, api.deleted)

	result, err = handleDeleteEvent(ctx, callRequest(map[string]interface{}{"eventId": "missing"}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetEvent(t *testing.T) {
	sc, _ := newTestServerContext(t)

	result, err := handleGetEvent(context.Background(), callRequest(map[string]interface{}{"eventId": "e1"}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"status": "confirmed"`)

	result, err = handleGetEvent(context.Background(), callRequest(map[string]interface{}{}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListCalendars(t *testing.T) {
	sc, _ := newTestServerContext(t)

	result, err := handleListCalendars(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Found 2 calendars:\n"), text)
	assert.Contains(t, text, `"backgroundColor": "#9fe1e7"`)
	assert.Contains(t, text, `"accessRole": "reader"`)
}

func TestHandleCacheStats(t *testing.T) {
	sc, _ := newTestServerContext(t)
	ctx := context.Background()

	_, err := handleListEvents(ctx, callRequest(listArgs(nil)), sc)
	require.NoError(t, err)
	_, err = handleListEvents(ctx, callRequest(listArgs(nil)), sc)
	require.NoError(t, err)

	result, err := handleCacheStats(ctx, callRequest(nil), sc)
	require.NoError(t, err)

	var stats cacheStatsResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &stats))
	assert.Equal(t, "default", stats.Account)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, "3m0s", stats.TTL)
}

func TestParseEventTime(t *testing.T) {
	tests := []struct {
		value   string
		want    calendar.EventTime
		wantErr bool
	}{
		{value: "2025-03-05", want: calendar.EventTime{Date: "2025-03-05"}},
		{value: "2025-03-05T10:00:00+01:00", want: calendar.EventTime{DateTime: "2025-03-05T10:00:00+01:00", TimeZone: "Europe/Berlin"}},
		{value: "tomorrow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseEventTime("start", tt.value, "Europe/Berlin")
			if tt.wantErr {
				assert.ErrorContains(t, err, "invalid start format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAttendees(t *testing.T) {
	got, err := parseAttendees("a@example.com, ,b@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got)

	got, err = parseAttendees([]interface{}{"c@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c@example.com"}, got)

	got, err = parseAttendees(`["d@example.com"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"d@example.com"}, got)
}
