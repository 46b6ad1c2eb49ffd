package server

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/teemow/gcal-mcp/internal/calendar"
	"github.com/teemow/gcal-mcp/internal/eventcache"
	"github.com/teemow/gcal-mcp/internal/google"
	"github.com/teemow/gcal-mcp/internal/instrumentation"
	"github.com/teemow/gcal-mcp/internal/logging"
)

// Config holds what the server context needs to build per-account clients.
type Config struct {
	// OAuthPath is the OAuth client keys file (installed or web application).
	OAuthPath string

	// CredentialsPath is the stored token file of the default account.
	CredentialsPath string

	// Cache configures the event cache engine created for every account.
	// Logger and Metrics are filled in from this Config.
	Cache eventcache.Config

	// RateLimit is the sustained request rate per account. Zero selects
	// calendar.DefaultRateLimit, a negative value disables limiting.
	RateLimit float64

	// Burst is the limiter burst size. Zero selects calendar.DefaultBurst.
	Burst int

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// ServerContext holds the context for the MCP server
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	config Config

	tokenProvider google.TokenProvider
	oauthConfig   *oauth2.Config

	calendarClients map[string]*calendar.Client   // Maps account name to Calendar client
	engines         map[string]*eventcache.Engine // Maps account name to its event cache
	mu              sync.RWMutex
	shutdown        bool
}

// NewServerContext creates a new server context. Clients are created lazily
// on first use, so a missing token only fails the tools of that account.
func NewServerContext(ctx context.Context, config Config) (*ServerContext, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.OAuthPath == "" {
		config.OAuthPath = google.DefaultOAuthPath()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:             shutdownCtx,
		cancel:          cancel,
		config:          config,
		tokenProvider:   google.NewFileTokenProvider(config.CredentialsPath),
		calendarClients: make(map[string]*calendar.Client),
		engines:         make(map[string]*eventcache.Engine),
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.config.Logger
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.config.Metrics
}

// SetTokenProvider replaces the token provider used for new clients.
func (sc *ServerContext) SetTokenProvider(provider google.TokenProvider) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.tokenProvider = provider
}

// CalendarClientForAccount returns the Calendar client for a specific account.
// Creates and caches the client if it doesn't exist yet.
func (sc *ServerContext) CalendarClientForAccount(account string) (*calendar.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.calendarClientLocked(account)
}

func (sc *ServerContext) calendarClientLocked(account string) (*calendar.Client, error) {
	if sc.shutdown {
		return nil, fmt.Errorf("server is shutting down")
	}
	if account == "" {
		account = google.DefaultAccount
	}

	if client, ok := sc.calendarClients[account]; ok {
		return client, nil
	}

	if !sc.tokenProvider.HasTokenForAccount(account) {
		return nil, fmt.Errorf("no Google OAuth token found for account %q", account)
	}

	if sc.oauthConfig == nil {
		conf, err := google.LoadOAuthConfig(sc.config.OAuthPath)
		if err != nil {
			return nil, err
		}
		sc.oauthConfig = conf
	}

	client, err := calendar.NewClientForAccount(sc.ctx, account, sc.oauthConfig, sc.tokenProvider, sc.clientOptions()...)
	if err != nil {
		return nil, err
	}

	sc.config.Logger.Info("created calendar client", logging.Account(account))
	sc.calendarClients[account] = client
	return client, nil
}

func (sc *ServerContext) clientOptions() []calendar.Option {
	opts := []calendar.Option{
		calendar.WithLogger(sc.config.Logger),
		calendar.WithMetrics(sc.config.Metrics),
	}

	switch {
	case sc.config.RateLimit < 0:
		opts = append(opts, calendar.WithRateLimit(0, 0))
	case sc.config.RateLimit > 0:
		burst := sc.config.Burst
		if burst <= 0 {
			burst = calendar.DefaultBurst
		}
		opts = append(opts, calendar.WithRateLimit(rate.Limit(sc.config.RateLimit), burst))
	}

	return opts
}

// CalendarClient returns the Calendar client for the default account
func (sc *ServerContext) CalendarClient() (*calendar.Client, error) {
	return sc.CalendarClientForAccount(google.DefaultAccount)
}

// SetCalendarClientForAccount sets the Calendar client for a specific account.
// Any engine built on the previous client is dropped.
func (sc *ServerContext) SetCalendarClientForAccount(account string, client *calendar.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.calendarClients[account] = client
	delete(sc.engines, account)
}

// EngineForAccount returns the event cache engine of account, creating it
// and its Calendar client on first use. Every account has its own cache.
func (sc *ServerContext) EngineForAccount(account string) (*eventcache.Engine, error) {
	if account == "" {
		account = google.DefaultAccount
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if engine, ok := sc.engines[account]; ok {
		return engine, nil
	}

	client, err := sc.calendarClientLocked(account)
	if err != nil {
		return nil, err
	}

	cacheConfig := sc.config.Cache
	cacheConfig.Logger = logging.WithAccount(sc.config.Logger, account)
	cacheConfig.Metrics = sc.config.Metrics

	engine, err := eventcache.New(client, cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event cache for account %s: %w", account, err)
	}

	sc.engines[account] = engine
	return engine, nil
}

// Accounts returns the accounts that have an event cache, sorted by name.
func (sc *ServerContext) Accounts() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	accounts := make([]string, 0, len(sc.engines))
	for account := range sc.engines {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}

// CacheStats returns the cache statistics of every account with an engine.
func (sc *ServerContext) CacheStats() map[string]eventcache.StoreStats {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	stats := make(map[string]eventcache.StoreStats, len(sc.engines))
	for account, engine := range sc.engines {
		stats[account] = engine.Store().Stats()
	}
	return stats
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context and drops all cached events.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	for _, engine := range sc.engines {
		engine.Store().Purge()
	}
	sc.engines = make(map[string]*eventcache.Engine)
	sc.calendarClients = make(map[string]*calendar.Client)

	sc.shutdown = true
	sc.cancel()
	return nil
}
