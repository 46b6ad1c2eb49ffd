package calendar_tools

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gcal-mcp/internal/calendar"
	"github.com/teemow/gcal-mcp/internal/eventcache"
	"github.com/teemow/gcal-mcp/internal/server"
)

// Shared parameter descriptions.
const (
	accountDescription    = "Account name (default: 'default'). Used to manage multiple Google accounts."
	calendarIDDescription = "Calendar ID (default: 'primary')"
)

func withAccount() mcp.ToolOption {
	return mcp.WithString("account", mcp.Description(accountDescription))
}

func withCalendarID() mcp.ToolOption {
	return mcp.WithString("calendarId", mcp.Description(calendarIDDescription))
}

// getCalendarClient returns the Calendar client of account.
func getCalendarClient(account string, sc *server.ServerContext) (*calendar.Client, error) {
	client, err := sc.CalendarClientForAccount(account)
	if err != nil {
		return nil, fmt.Errorf("calendar client for account %q unavailable: %w", account, err)
	}
	return client, nil
}

// getEngine returns the event cache engine of account.
func getEngine(account string, sc *server.ServerContext) (*eventcache.Engine, error) {
	engine, err := sc.EngineForAccount(account)
	if err != nil {
		return nil, fmt.Errorf("calendar client for account %q unavailable: %w", account, err)
	}
	return engine, nil
}

// RegisterCalendarTools registers all Calendar-related tools with the MCP
// server. Tools that change events are only registered when readOnly is false.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterCalendarListTools(s, sc); err != nil {
		return fmt.Errorf("failed to register calendar list tools: %w", err)
	}

	if err := RegisterEventTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register event tools: %w", err)
	}

	if err := RegisterMultiCalendarTools(s, sc); err != nil {
		return fmt.Errorf("failed to register multi-calendar tools: %w", err)
	}

	if err := RegisterCacheTools(s, sc); err != nil {
		return fmt.Errorf("failed to register cache tools: %w", err)
	}

	return nil
}
