package batch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teemow/gcal-mcp/internal/eventcache"
)

// Result represents the result of a single operation in a batch
type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "success" or "error"
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResult represents the aggregated results of a batch operation
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// CalendarEvents is the outcome for one calendar of a multi-calendar query.
type CalendarEvents struct {
	CalendarID string             `json:"calendarId"`
	Events     []eventcache.Event `json:"events"`
	Error      string             `json:"error,omitempty"`
}

// CalendarEventsResult aggregates a multi-calendar query in request order.
type CalendarEventsResult struct {
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Calendars  []CalendarEvents `json:"calendars"`
}

// ParseStringOrArray parses a parameter that can be a single string, an
// array of strings or a string holding a JSON array of strings.
func ParseStringOrArray(param interface{}, paramName string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	switch v := param.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		// Clients that cannot send arrays pass them JSON encoded. Anything
		// that does not decode is taken as a single value.
		if strings.HasPrefix(trimmed, "[") {
			var items []interface{}
			if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
				return parseArray(items, paramName)
			}
		}
		return []string{v}, nil
	case []string:
		items := make([]interface{}, len(v))
		for i, s := range v {
			items[i] = s
		}
		return parseArray(items, paramName)
	case []interface{}:
		return parseArray(v, paramName)
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}
}

func parseArray(items []interface{}, paramName string) ([]string, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}

	result := make([]string, 0, len(items))
	for i, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
		}
		if str == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
		}
		result = append(result, str)
	}
	return result, nil
}

// FormatResults creates a formatted JSON string from batch results
func FormatResults(results []Result) string {
	br := BatchResult{
		Total:   len(results),
		Results: results,
	}

	for _, r := range results {
		if r.Status == "success" {
			br.Successful++
		} else {
			br.Failed++
		}
	}

	jsonBytes, _ := json.MarshalIndent(br, "", "  ")
	return string(jsonBytes)
}

// ProcessBatch executes a function on each item and collects results
// fn should return (result string, error) for each item
func ProcessBatch(ids []string, fn func(id string) (string, error)) []Result {
	results := make([]Result, 0, len(ids))

	for _, id := range ids {
		res, err := fn(id)
		if err != nil {
			results = append(results, NewErrorResult(id, err))
		} else {
			results = append(results, NewSuccessResult(id, res))
		}
	}

	return results
}

// NewSuccessResult creates a success result
func NewSuccessResult(id, message string) Result {
	return Result{
		ID:     id,
		Status: "success",
		Result: message,
	}
}

// NewErrorResult creates an error result
func NewErrorResult(id string, err error) Result {
	return Result{
		ID:     id,
		Status: "error",
		Error:  err.Error(),
	}
}

// NewCalendarEventsResult converts engine results, keeping their order. A
// failed calendar carries its error and an empty event list.
func NewCalendarEventsResult(results []eventcache.CalendarResult) CalendarEventsResult {
	out := CalendarEventsResult{
		Total:     len(results),
		Calendars: make([]CalendarEvents, 0, len(results)),
	}

	for _, r := range results {
		entry := CalendarEvents{CalendarID: r.ResourceID, Events: r.Events}
		if entry.Events == nil {
			entry.Events = []eventcache.Event{}
		}
		if r.Err != nil {
			entry.Error = r.Err.Error()
			out.Failed++
		} else {
			out.Successful++
		}
		out.Calendars = append(out.Calendars, entry)
	}

	return out
}

// FormatCalendarResults renders engine results as indented JSON.
func FormatCalendarResults(results []eventcache.CalendarResult) string {
	jsonBytes, _ := json.MarshalIndent(NewCalendarEventsResult(results), "", "  ")
	return string(jsonBytes)
}
