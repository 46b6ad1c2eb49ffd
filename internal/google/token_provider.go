package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAccount is the account name used when none is given.
const DefaultAccount = "default"

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// TokenProvider is an interface for providing OAuth tokens for Google APIs.
type TokenProvider interface {
	// GetTokenForAccount retrieves an OAuth token for the specified account
	GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error)

	// HasTokenForAccount checks if a token exists for the specified account
	HasTokenForAccount(account string) bool
}

// FileTokenProvider reads tokens from JSON files. The default account uses
// the configured credentials file; any other account uses
// credentials-<account>.json in the same directory.
type FileTokenProvider struct {
	credentialsPath string
}

// NewFileTokenProvider creates a file-based token provider rooted at
// credentialsPath. An empty path selects DefaultCredentialsPath.
func NewFileTokenProvider(credentialsPath string) *FileTokenProvider {
	if credentialsPath == "" {
		credentialsPath = DefaultCredentialsPath()
	}
	return &FileTokenProvider{credentialsPath: credentialsPath}
}

// GetTokenForAccount reads the stored token of account.
func (p *FileTokenProvider) GetTokenForAccount(_ context.Context, account string) (*oauth2.Token, error) {
	path, err := p.TokenPath(account)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no stored Google credentials for account %s at %s", account, path)
		}
		return nil, fmt.Errorf("failed to read credentials for account %s: %w", account, err)
	}

	token, err := parseToken(data)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials file %s: %w", path, err)
	}
	return token, nil
}

// HasTokenForAccount checks if a token file exists for account.
func (p *FileTokenProvider) HasTokenForAccount(account string) bool {
	path, err := p.TokenPath(account)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// TokenPath returns the token file of account.
func (p *FileTokenProvider) TokenPath(account string) (string, error) {
	if account == "" {
		account = DefaultAccount
	}
	if err := validateAccountName(account); err != nil {
		return "", err
	}
	if account == DefaultAccount {
		return p.credentialsPath, nil
	}

	dir := filepath.Dir(p.credentialsPath)
	ext := filepath.Ext(p.credentialsPath)
	base := strings.TrimSuffix(filepath.Base(p.credentialsPath), ext)
	return filepath.Join(dir, base+"-"+account+ext), nil
}

func validateAccountName(account string) error {
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// storedToken accepts both the oauth2.Token JSON layout and the layout
// written by Node.js Google clients, whose expiry is epoch milliseconds.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	ExpiryDate   int64     `json:"expiry_date"`
}

func parseToken(data []byte) (*oauth2.Token, error) {
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	if st.AccessToken == "" && st.RefreshToken == "" {
		return nil, fmt.Errorf("no access or refresh token")
	}

	token := &oauth2.Token{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
		TokenType:    st.TokenType,
		Expiry:       st.Expiry,
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	if token.Expiry.IsZero() && st.ExpiryDate > 0 {
		token.Expiry = time.UnixMilli(st.ExpiryDate)
	}
	return token, nil
}
