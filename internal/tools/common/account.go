package common

import "github.com/teemow/gcal-mcp/internal/google"

// DefaultCalendarID is used when a tool is called without calendarId.
const DefaultCalendarID = "primary"

// GetAccountFromArgs extracts the account name from request arguments,
// defaulting to "default".
func GetAccountFromArgs(args map[string]interface{}) string {
	if accountVal, ok := args["account"].(string); ok && accountVal != "" {
		return accountVal
	}
	return google.DefaultAccount
}

// GetCalendarIDFromArgs extracts the calendar ID from request arguments,
// defaulting to the primary calendar.
func GetCalendarIDFromArgs(args map[string]interface{}) string {
	if calIDVal, ok := args["calendarId"].(string); ok && calIDVal != "" {
		return calIDVal
	}
	return DefaultCalendarID
}
