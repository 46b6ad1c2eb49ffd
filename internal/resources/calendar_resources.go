package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gcal-mcp/internal/google"
	"github.com/teemow/gcal-mcp/internal/server"
)

const (
	// CalendarsURI lists the calendars of the default account.
	CalendarsURI = "calendar://calendars"

	// CacheStatsURI reports the event cache of every active account.
	CacheStatsURI = "calendar://cache/stats"
)

// RegisterCalendarResources registers read-only calendar resources
func RegisterCalendarResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	calendarsResource := mcp.NewResource(
		CalendarsURI,
		"Calendars",
		mcp.WithResourceDescription("Calendars visible to the default Google account"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(calendarsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleCalendars(ctx, request, sc)
	})

	cacheResource := mcp.NewResource(
		CacheStatsURI,
		"Event Cache Statistics",
		mcp.WithResourceDescription("Hit, stale, miss and eviction counters of each account's event cache"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(cacheResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleCacheStats(ctx, request, sc)
	})

	return nil
}

func handleCalendars(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	account := google.DefaultAccount

	client, err := sc.CalendarClientForAccount(account)
	if err != nil {
		return nil, fmt.Errorf("no calendar client available for account %s: %w", account, err)
	}

	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	return jsonContents(request.Params.URI, map[string]interface{}{
		"account":   account,
		"calendars": calendars,
	})
}

func handleCacheStats(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	return jsonContents(request.Params.URI, map[string]interface{}{
		"accounts": sc.CacheStats(),
	})
}

func jsonContents(uri string, data interface{}) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
