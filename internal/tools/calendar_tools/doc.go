// Package calendar_tools provides MCP tools for Google Calendar.
//
// Event listings go through the account's event cache: calendar_list_events
// serves one calendar and calendar_list_events_multi resolves several
// calendars with a single batch request. Write tools are registered only
// outside read-only mode and invalidate the cached ranges of the calendar
// they change.
package calendar_tools
