package calendar_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gcal-mcp/internal/instrumentation"
	"github.com/teemow/gcal-mcp/internal/server"
	"github.com/teemow/gcal-mcp/internal/tools/batch"
	"github.com/teemow/gcal-mcp/internal/tools/common"
)

// RegisterMultiCalendarTools registers tools that query several calendars at once.
func RegisterMultiCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listEventsMultiTool := mcp.NewTool("calendar_list_events_multi",
		mcp.WithDescription("List events of several calendars over the same time range in one call. "+
			"Calendars are fetched in a single batch request where possible and returned in the requested order. "+
			"A calendar that cannot be read reports an error without failing the others."),
		mcp.WithReadOnlyHintAnnotation(true),
		withAccount(),
		mcp.WithString("calendarIds",
			mcp.Required(),
			mcp.Description("Calendar ID (string), array of calendar IDs or a JSON array string"),
		),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start of the range (RFC3339)"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End of the range (RFC3339)"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description(fmt.Sprintf("Maximum number of events per calendar (default: %d)", DefaultMaxResults)),
		),
	)

	s.AddTool(listEventsMultiTool, common.InstrumentedToolHandlerWithService(
		"calendar_list_events_multi", instrumentation.ServiceCalendar, instrumentation.OperationBatch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEventsMulti(ctx, request, sc)
		}))

	return nil
}

func handleListEventsMulti(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)

	calendarIDs, err := batch.ParseStringOrArray(args["calendarIds"], "calendarIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

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

	results := engine.FetchMany(ctx, calendarIDs, timeMin, timeMax, maxResults)
	return mcp.NewToolResultText(batch.FormatCalendarResults(results)), nil
}
