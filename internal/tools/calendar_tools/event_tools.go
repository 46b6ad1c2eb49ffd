package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gcal-mcp/internal/calendar"
	"github.com/teemow/gcal-mcp/internal/eventcache"
	"github.com/teemow/gcal-mcp/internal/instrumentation"
	"github.com/teemow/gcal-mcp/internal/logging"
	"github.com/teemow/gcal-mcp/internal/server"
	"github.com/teemow/gcal-mcp/internal/tools/batch"
	"github.com/teemow/gcal-mcp/internal/tools/common"
)

// DefaultMaxResults is the number of events returned when maxResults is not given.
const DefaultMaxResults = 10

const dateLayout = "2006-01-02"

// RegisterEventTools registers event-related tools with the MCP server
func RegisterEventTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listEventsTool := mcp.NewTool("calendar_list_events",
		mcp.WithDescription("List events of a calendar within a time range. Results are cached for a few minutes."),
		mcp.WithReadOnlyHintAnnotation(true),
		withAccount(),
		withCalendarID(),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start of the range (RFC3339, e.g. '2025-01-01T00:00:00Z')"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End of the range (RFC3339, e.g. '2025-01-31T23:59:59Z')"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description(fmt.Sprintf("Maximum number of events to return (default: %d)", DefaultMaxResults)),
		),
	)

	s.AddTool(listEventsTool, common.InstrumentedToolHandlerWithService(
		"calendar_list_events", instrumentation.ServiceCalendar, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, sc)
		}))

	getEventTool := mcp.NewTool("calendar_get_event",
		mcp.WithDescription("Get details of a specific calendar event"),
		mcp.WithReadOnlyHintAnnotation(true),
		withAccount(),
		withCalendarID(),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to retrieve"),
		),
	)

	s.AddTool(getEventTool, common.InstrumentedToolHandlerWithService(
		"calendar_get_event", instrumentation.ServiceCalendar, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetEvent(ctx, request, sc)
		}))

	// Register create/update/delete tools only if not in read-only mode
	if readOnly {
		return nil
	}

	createEventTool := mcp.NewTool("calendar_create_event",
		mcp.WithDescription("Create a new calendar event"),
		mcp.WithReadOnlyHintAnnotation(false),
		withAccount(),
		withCalendarID(),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title/summary"),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start time (RFC3339, e.g. '2025-01-15T14:00:00Z') or date (YYYY-MM-DD) for all-day events"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("End time (RFC3339) or date (YYYY-MM-DD, exclusive) for all-day events"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone (e.g., 'America/New_York')"),
		),
		mcp.WithString("attendees",
			mcp.Description("Attendee email addresses, comma-separated or as an array"),
		),
	)

	s.AddTool(createEventTool, common.InstrumentedToolHandlerWithService(
		"calendar_create_event", instrumentation.ServiceCalendar, instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateEvent(ctx, request, sc)
		}))

	updateEventTool := mcp.NewTool("calendar_update_event",
		mcp.WithDescription("Update an existing calendar event. Only the given fields are changed."),
		mcp.WithReadOnlyHintAnnotation(false),
		withAccount(),
		withCalendarID(),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to update"),
		),
		mcp.WithString("summary",
			mcp.Description("New event title/summary"),
		),
		mcp.WithString("description",
			mcp.Description("New event description"),
		),
		mcp.WithString("location",
			mcp.Description("New event location"),
		),
		mcp.WithString("start",
			mcp.Description("New start time (RFC3339) or date (YYYY-MM-DD)"),
		),
		mcp.WithString("end",
			mcp.Description("New end time (RFC3339) or date (YYYY-MM-DD)"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone for the new start and end"),
		),
	)

	s.AddTool(updateEventTool, common.InstrumentedToolHandlerWithService(
		"calendar_update_event", instrumentation.ServiceCalendar, instrumentation.OperationPatch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateEvent(ctx, request, sc)
		}))

	deleteEventTool := mcp.NewTool("calendar_delete_event",
		mcp.WithDescription("Delete one or more calendar events"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		withAccount(),
		withCalendarID(),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("Event ID (string) or array of event IDs to delete"),
		),
	)

	s.AddTool(deleteEventTool, common.InstrumentedToolHandlerWithService(
		"calendar_delete_event", instrumentation.ServiceCalendar, instrumentation.OperationDelete, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteEvent(ctx, request, sc)
		}))

	return nil
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)
	calendarID := common.GetCalendarIDFromArgs(args)

	timeMin, err := common.RequiredRFC3339(args, "timeMin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	timeMax, err := common.RequiredRFC3339(args, "timeMax")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	maxResults, err := common.PositiveInt(args, "maxResults", DefaultMaxResults)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	engine, err := getEngine(account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	events, err := engine.Fetch(ctx, eventcache.Query{
		ResourceID: calendarID,
		RangeStart: timeMin,
		RangeEnd:   timeMax,
		MaxResults: maxResults,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list events: %v", err)), nil
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode events: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Found %d events (calendar: %s):\n%s", len(events), calendarID, data)), nil
}

func handleGetEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)
	calendarID := common.GetCalendarIDFromArgs(args)

	eventID, err := common.RequiredString(args, "eventId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := getCalendarClient(account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	event, err := client.GetEvent(ctx, calendarID, eventID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get event: %v", err)), nil
	}

	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode event: %v", err)), nil
	}

	return mcp.NewToolResultText(string(data)), nil
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)
	calendarID := common.GetCalendarIDFromArgs(args)

	summary, err := common.RequiredString(args, "summary")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	timeZone, _ := common.OptionalString(args, "timeZone")

	startStr, err := common.RequiredString(args, "start")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	start, err := parseEventTime("start", startStr, timeZone)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	endStr, err := common.RequiredString(args, "end")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	end, err := parseEventTime("end", endStr, timeZone)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	input := calendar.EventInput{
		Summary: summary,
		Start:   start,
		End:     end,
	}
	input.Description, _ = common.OptionalString(args, "description")
	input.Location, _ = common.OptionalString(args, "location")

	if raw, ok := args["attendees"]; ok && raw != nil {
		attendees, err := parseAttendees(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		input.Attendees = attendees
	}

	client, err := getCalendarClient(account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	event, err := client.CreateEvent(ctx, calendarID, input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create event: %v", err)), nil
	}
	invalidateCalendar(ctx, sc, account, calendarID)

	result := fmt.Sprintf("Event created with ID: %s\n", event.Id)
	result += fmt.Sprintf("Calendar: %s\n", calendarID)
	result += fmt.Sprintf("Title: %s\n", summary)
	result += fmt.Sprintf("Start: %s\n", formatEventTime(start))
	result += fmt.Sprintf("End: %s", formatEventTime(end))
	if event.HtmlLink != "" {
		result += fmt.Sprintf("\nLink: %s", event.HtmlLink)
	}

	return mcp.NewToolResultText(result), nil
}

func handleUpdateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)
	calendarID := common.GetCalendarIDFromArgs(args)

	eventID, err := common.RequiredString(args, "eventId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var patch calendar.EventPatch
	if summary, ok := common.OptionalString(args, "summary"); ok {
		patch.Summary = &summary
	}
	if description, ok := common.OptionalString(args, "description"); ok {
		patch.Description = &description
	}
	if location, ok := common.OptionalString(args, "location"); ok {
		patch.Location = &location
	}

	timeZone, _ := common.OptionalString(args, "timeZone")
	if startStr, ok := common.OptionalString(args, "start"); ok && startStr != "" {
		patch.Start, err = parseEventTime("start", startStr, timeZone)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if endStr, ok := common.OptionalString(args, "end"); ok && endStr != "" {
		patch.End, err = parseEventTime("end", endStr, timeZone)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	if patch.IsEmpty() {
		return mcp.NewToolResultError("at least one of summary, description, location, start or end is required"), nil
	}

	client, err := getCalendarClient(account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := client.PatchEvent(ctx, calendarID, eventID, patch); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update event: %v", err)), nil
	}
	invalidateCalendar(ctx, sc, account, calendarID)

	result := fmt.Sprintf("Event updated: %s\n", eventID)
	result += fmt.Sprintf("Calendar: %s\n", calendarID)
	result += fmt.Sprintf("New title: %s\n", valueOrUnchanged(patch.Summary))
	result += fmt.Sprintf("New start: %s\n", formatEventTime(patch.Start))
	result += fmt.Sprintf("New end: %s", formatEventTime(patch.End))

	return mcp.NewToolResultText(result), nil
}

func handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)
	calendarID := common.GetCalendarIDFromArgs(args)

	eventIDs, err := batch.ParseStringOrArray(args["eventId"], "eventId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := getCalendarClient(account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.ProcessBatch(eventIDs, func(eventID string) (string, error) {
		if err := client.DeleteEvent(ctx, calendarID, eventID); err != nil {
			return "", err
		}
		return "deleted", nil
	})
	invalidateCalendar(ctx, sc, account, calendarID)

	if len(results) == 1 {
		if results[0].Status != "success" {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to delete event: %s", results[0].Error)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Event deleted: %s (calendar: %s)", eventIDs[0], calendarID)), nil
	}

	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

// invalidateCalendar drops every cached range of calendarID after a write.
func invalidateCalendar(ctx context.Context, sc *server.ServerContext, account, calendarID string) {
	engine, err := sc.EngineForAccount(account)
	if err != nil {
		return
	}
	removed := engine.Invalidate(calendarID)
	sc.Logger().DebugContext(ctx, "invalidated cached events",
		logging.Account(account),
		logging.Calendar(calendarID),
		slog.Int("entries", removed))
}

// parseEventTime accepts an RFC3339 timestamp or a date for all-day events.
func parseEventTime(name, value, timeZone string) (calendar.EventTime, error) {
	if _, err := time.Parse(dateLayout, value); err == nil {
		return calendar.EventTime{Date: value}, nil
	}
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		return calendar.EventTime{}, fmt.Errorf("invalid %s format (expected RFC3339 or YYYY-MM-DD): %v", name, err)
	}
	return calendar.EventTime{DateTime: value, TimeZone: timeZone}, nil
}

func parseAttendees(raw interface{}) ([]string, error) {
	if s, ok := raw.(string); ok && !strings.HasPrefix(strings.TrimSpace(s), "[") {
		var attendees []string
		for _, email := range strings.Split(s, ",") {
			if email = strings.TrimSpace(email); email != "" {
				attendees = append(attendees, email)
			}
		}
		return attendees, nil
	}
	return batch.ParseStringOrArray(raw, "attendees")
}

func formatEventTime(t calendar.EventTime) string {
	switch {
	case t.DateTime != "":
		return t.DateTime
	case t.Date != "":
		return t.Date
	default:
		return "(unchanged)"
	}
}

func valueOrUnchanged(s *string) string {
	if s == nil || *s == "" {
		return "(unchanged)"
	}
	return *s
}
