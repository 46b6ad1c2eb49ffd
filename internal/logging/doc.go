// Package logging provides structured logging helpers for gcal-mcp.
//
// All components log through log/slog with a shared set of attribute keys.
// Calendar IDs that look like email addresses are hashed before they reach
// the log, and tokens are only ever logged as a length.
//
//	logger := logging.WithService(slog.Default(), "eventcache.fetcher")
//	logger.Warn("incremental sync failed",
//	    logging.Calendar(calendarID),
//	    logging.Err(err))
package logging
