package calendar

import (
	calendar "google.golang.org/api/calendar/v3"
)

// EventTime is the start or end of an event. Exactly one of DateTime (RFC3339)
// or Date (yyyy-mm-dd, all-day events) is expected to be set.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// IsZero reports whether no time was given.
func (t EventTime) IsZero() bool {
	return t.DateTime == "" && t.Date == ""
}

// EventInput represents the input for creating a calendar event
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       EventTime
	End         EventTime
	Attendees   []string
}

// EventPatch holds the fields to change on an existing event. Nil or zero
// fields are left untouched.
type EventPatch struct {
	Summary     *string
	Description *string
	Location    *string
	Start       EventTime
	End         EventTime
}

// IsEmpty reports whether the patch changes nothing.
func (p EventPatch) IsEmpty() bool {
	return p.Summary == nil && p.Description == nil && p.Location == nil &&
		p.Start.IsZero() && p.End.IsZero()
}

// CalendarInfo represents information about a calendar
type CalendarInfo struct {
	ID              string `json:"id"`
	Summary         string `json:"summary"`
	Description     string `json:"description"`
	Primary         bool   `json:"primary"`
	AccessRole      string `json:"accessRole"` // "owner", "writer", "reader", "freeBusyReader"
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TimeZone        string `json:"timeZone,omitempty"`
}

func toEventDateTime(t EventTime) *calendar.EventDateTime {
	if t.IsZero() {
		return nil
	}
	return &calendar.EventDateTime{
		DateTime: t.DateTime,
		Date:     t.Date,
		TimeZone: t.TimeZone,
	}
}

func (in EventInput) toEvent() *calendar.Event {
	event := &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start:       toEventDateTime(in.Start),
		End:         toEventDateTime(in.End),
	}
	for _, email := range in.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}
	return event
}

func (p EventPatch) toEvent() *calendar.Event {
	event := &calendar.Event{
		Start: toEventDateTime(p.Start),
		End:   toEventDateTime(p.End),
	}
	if p.Summary != nil {
		event.Summary = *p.Summary
		if *p.Summary == "" {
			event.ForceSendFields = append(event.ForceSendFields, "Summary")
		}
	}
	if p.Description != nil {
		event.Description = *p.Description
		if *p.Description == "" {
			event.ForceSendFields = append(event.ForceSendFields, "Description")
		}
	}
	if p.Location != nil {
		event.Location = *p.Location
		if *p.Location == "" {
			event.ForceSendFields = append(event.ForceSendFields, "Location")
		}
	}
	return event
}

// toCalendarInfo converts a Google Calendar list entry to CalendarInfo
func toCalendarInfo(entry *calendar.CalendarListEntry) CalendarInfo {
	return CalendarInfo{
		ID:              entry.Id,
		Summary:         entry.Summary,
		Description:     entry.Description,
		Primary:         entry.Primary,
		AccessRole:      entry.AccessRole,
		BackgroundColor: entry.BackgroundColor,
		TimeZone:        entry.TimeZone,
	}
}
