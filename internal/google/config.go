package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
)

const (
	// DefaultConfigDirName is the directory under the user's home that holds
	// the OAuth keys and stored credentials.
	DefaultConfigDirName = ".calendar-mcp"

	// DefaultOAuthKeysFile is the file name of the OAuth client keys.
	DefaultOAuthKeysFile = "gcp-oauth.keys.json"

	// DefaultCredentialsFile is the file name of the default account's token.
	DefaultCredentialsFile = "credentials.json"
)

// CalendarScopes are the OAuth scopes required by the calendar tools.
var CalendarScopes = []string{calendar.CalendarScope}

// DefaultConfigDir returns ~/.calendar-mcp.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigDirName
	}
	return filepath.Join(home, DefaultConfigDirName)
}

// DefaultOAuthPath returns the default location of the OAuth keys file.
func DefaultOAuthPath() string {
	return filepath.Join(DefaultConfigDir(), DefaultOAuthKeysFile)
}

// DefaultCredentialsPath returns the default location of the stored token.
func DefaultCredentialsPath() string {
	return filepath.Join(DefaultConfigDir(), DefaultCredentialsFile)
}

// LoadOAuthConfig reads an OAuth client keys file. Both "installed" and "web"
// client types are accepted.
func LoadOAuthConfig(path string, scopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OAuth keys file %s: %w", path, err)
	}
	return ParseOAuthConfig(data, scopes...)
}

// ParseOAuthConfig parses OAuth client keys JSON.
func ParseOAuthConfig(data []byte, scopes ...string) (*oauth2.Config, error) {
	if len(scopes) == 0 {
		scopes = CalendarScopes
	}
	conf, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("invalid OAuth keys file: %w", err)
	}
	return conf, nil
}

// NewHTTPClient returns an HTTP client that authorizes requests with token and
// refreshes it through conf.
// The client is configured to use HTTP/1.1 since batch responses over HTTP/2
// have been unreliable.
func NewHTTPClient(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) *http.Client {
	base := &http.Client{
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token))
}
