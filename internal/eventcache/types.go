package eventcache

import (
	"context"

	calendar "google.golang.org/api/calendar/v3"
)

// EventFields is the field projection requested from the Calendar API. It is
// limited to what TrimEvent keeps plus the paging and sync cursors.
const EventFields = "items(id,summary,start,end,location,description,attendees(displayName,email,responseStatus,self)),nextPageToken,nextSyncToken"

// Event is the trimmed representation of a calendar event.
type Event struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Start       string     `json:"start"`
	End         string     `json:"end"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
}

// Attendee is the trimmed representation of an event attendee.
type Attendee struct {
	DisplayName    string `json:"displayName"`
	ResponseStatus string `json:"responseStatus,omitempty"`
	Self           bool   `json:"self,omitempty"`
}

// Query identifies one calendar's events over a time range. RangeStart and
// RangeEnd are passed to the API verbatim and take part in the cache key as-is.
type Query struct {
	ResourceID string
	RangeStart string
	RangeEnd   string
	MaxResults int64
}

// Key returns the cache key for the query.
func (q Query) Key() Key {
	return Key{ResourceID: q.ResourceID, RangeStart: q.RangeStart, RangeEnd: q.RangeEnd}
}

// BatchSubResponse is the result of one Query sent through a batch.
// Missing is set when the response had no part for this position.
type BatchSubResponse struct {
	ResourceID string
	Events     []Event
	SyncToken  string
	Err        error
	Missing    bool
}

// BatchHTTPResponse is the raw outer response of a batch request.
type BatchHTTPResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// CalendarResult is one entry of a FetchMany result.
type CalendarResult struct {
	ResourceID string
	Events     []Event
	Err        error
}

// Transport is the upstream calendar API consumed by the Fetcher.
type Transport interface {
	// ListEvents performs a full fetch of one page of events for q.
	ListEvents(ctx context.Context, q Query, fields string) (*calendar.Events, error)

	// ListEventsIncremental lists events changed since syncToken.
	// It returns ErrTokenExpired when the token is no longer valid.
	ListEventsIncremental(ctx context.Context, resourceID, syncToken string) (*calendar.Events, error)
}

// BatchTransport is implemented by transports able to send a multipart batch.
type BatchTransport interface {
	SendBatchRequest(ctx context.Context, body []byte, boundary string) (*BatchHTTPResponse, error)
}

// TrimEvent converts an API event into an Event.
func TrimEvent(e *calendar.Event) Event {
	if e == nil {
		return Event{}
	}

	event := Event{
		ID:          e.Id,
		Summary:     e.Summary,
		Start:       eventTime(e.Start),
		End:         eventTime(e.End),
		Location:    e.Location,
		Description: e.Description,
	}

	for _, a := range e.Attendees {
		if a == nil {
			continue
		}
		name := a.DisplayName
		if name == "" {
			name = a.Email
		}
		event.Attendees = append(event.Attendees, Attendee{
			DisplayName:    name,
			ResponseStatus: a.ResponseStatus,
			Self:           a.Self,
		})
	}

	return event
}

// TrimEvents converts a page of API events.
func TrimEvents(items []*calendar.Event) []Event {
	events := make([]Event, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		events = append(events, TrimEvent(item))
	}
	return events
}

// eventTime returns the timed value or, for all-day events, the date.
func eventTime(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date
}
