package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gcal-mcp/internal/server"
	"github.com/teemow/gcal-mcp/internal/tools/common"
)

type cacheStatsResult struct {
	Account    string `json:"account"`
	Entries    int    `json:"entries"`
	MaxEntries int    `json:"maxEntries"`
	TTL        string `json:"ttl"`
	Hits       uint64 `json:"hits"`
	Stale      uint64 `json:"stale"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
}

// RegisterCacheTools registers tools that inspect the event cache.
func RegisterCacheTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	cacheStatsTool := mcp.NewTool("calendar_cache_stats",
		mcp.WithDescription("Show event cache statistics for an account: size, hits, misses and evictions"),
		mcp.WithReadOnlyHintAnnotation(true),
		withAccount(),
	)

	s.AddTool(cacheStatsTool, common.InstrumentedToolHandler("calendar_cache_stats", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCacheStats(ctx, request, sc)
		}))

	return nil
}

func handleCacheStats(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	account := common.GetAccountFromArgs(request.GetArguments())

	engine, err := getEngine(account, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stats := engine.Store().Stats()
	data, err := json.MarshalIndent(cacheStatsResult{
		Account:    account,
		Entries:    stats.Entries,
		MaxEntries: stats.MaxEntries,
		TTL:        stats.TTL.String(),
		Hits:       stats.Hits,
		Stale:      stats.Stale,
		Misses:     stats.Misses,
		Evictions:  stats.Evictions,
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode cache stats: %v", err)), nil
	}

	return mcp.NewToolResultText(string(data)), nil
}
