package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAccountFromArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		expected string
	}{
		{"no account provided", map[string]interface{}{}, "default"},
		{"account provided", map[string]interface{}{"account": "work"}, "work"},
		{"empty account string", map[string]interface{}{"account": ""}, "default"},
		{"non-string account", map[string]interface{}{"account": 123}, "default"},
		{"nil args", nil, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetAccountFromArgs(tt.args))
		})
	}
}

func TestGetCalendarIDFromArgs(t *testing.T) {
	assert.Equal(t, "primary", GetCalendarIDFromArgs(map[string]interface{}{}))
	assert.Equal(t, "primary", GetCalendarIDFromArgs(map[string]interface{}{"calendarId": ""}))
	assert.Equal(t, "team@example.com", GetCalendarIDFromArgs(map[string]interface{}{"calendarId": "team@example.com"}))
}
