package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teemow/gcal-mcp/internal/eventcache"
	"github.com/teemow/gcal-mcp/internal/instrumentation"
	"github.com/teemow/gcal-mcp/internal/resources"
	"github.com/teemow/gcal-mcp/internal/server"
	"github.com/teemow/gcal-mcp/internal/tools/calendar_tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"

	// envPrefix namespaces every serve setting, e.g. CALENDAR_CACHE_TTL.
	envPrefix = "CALENDAR"
)

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// serveOptions is the resolved serve configuration after flags, environment
// and config file have been merged.
type serveOptions struct {
	Transport        string
	HTTPAddr         string
	DisableStreaming bool
	Debug            bool
	Yolo             bool

	OAuthPath       string
	CredentialsPath string

	CacheTTL         time.Duration
	CacheMaxEntries  int
	BatchMaxSize     int
	FetchConcurrency int

	APIRateLimit float64
	APIBurst     int

	Metrics MetricsConfig
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server to expose Google Calendar to AI assistants.

Event listings are cached per account and calendar. Listing several calendars
at once is sent as a single batch request.

Every flag can also be set through the environment with the CALENDAR_ prefix
(e.g. CALENDAR_CACHE_TTL=5m, CALENDAR_OAUTH_PATH=/path/to/keys.json) or
through a YAML file passed with --config.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on /mcp

Security:
  By default, the server runs in read-only mode. Use --yolo to enable
  creating, updating and deleting events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadServeOptions(cmd)
			if err != nil {
				return err
			}
			return runServe(opts)
		},
	}

	cmd.Flags().String("config", "", "Optional YAML config file with the same keys as the flags")
	cmd.Flags().String("transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().String("http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().Bool("disable-streaming", false, "Answer streamable-http requests with plain JSON instead of SSE")
	cmd.Flags().Bool("debug", false, "Enable debug logging")
	cmd.Flags().Bool("yolo", false, "Enable write operations (create, update and delete events)")

	cmd.Flags().String("oauth-path", "", "OAuth client keys file (default: ~/.calendar-mcp/gcp-oauth.keys.json)")
	cmd.Flags().String("credentials-path", "", "Stored token file of the default account (default: ~/.calendar-mcp/credentials.json)")

	cmd.Flags().Duration("cache-ttl", eventcache.DefaultTTL, "How long cached events are served without revalidation")
	cmd.Flags().Int("cache-max-entries", eventcache.DefaultMaxEntries, "Maximum cached event listings per account")
	cmd.Flags().Int("batch-max-size", eventcache.DefaultMaxBatchSize, "Maximum sub-requests per batch request (at most 50)")
	cmd.Flags().Int("fetch-concurrency", eventcache.DefaultFetchConcurrency, "Parallel single-calendar fetches when a batch request fails")

	cmd.Flags().Float64("api-rate-limit", 0, "Google API requests per second per account (0 uses the built-in default, negative disables)")
	cmd.Flags().Int("api-burst", 0, "Google API request burst per account (0 uses the built-in default)")

	cmd.Flags().Bool("metrics-enabled", true, "Enable the metrics server on a dedicated port (streamable-http only)")
	cmd.Flags().String("metrics-addr", server.DefaultMetricsAddr, "Metrics server address")

	return cmd
}

// newServeViper binds the command flags to a viper instance that also reads
// CALENDAR_* environment variables and the optional --config file.
func newServeViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	return v, nil
}

func loadServeOptions(cmd *cobra.Command) (serveOptions, error) {
	v, err := newServeViper(cmd)
	if err != nil {
		return serveOptions{}, err
	}

	opts := serveOptions{
		Transport:        v.GetString("transport"),
		HTTPAddr:         v.GetString("http-addr"),
		DisableStreaming: v.GetBool("disable-streaming"),
		Debug:            v.GetBool("debug"),
		Yolo:             v.GetBool("yolo"),
		OAuthPath:        v.GetString("oauth-path"),
		CredentialsPath:  v.GetString("credentials-path"),
		CacheTTL:         v.GetDuration("cache-ttl"),
		CacheMaxEntries:  v.GetInt("cache-max-entries"),
		BatchMaxSize:     v.GetInt("batch-max-size"),
		FetchConcurrency: v.GetInt("fetch-concurrency"),
		APIRateLimit:     v.GetFloat64("api-rate-limit"),
		APIBurst:         v.GetInt("api-burst"),
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics-enabled"),
			Addr:    v.GetString("metrics-addr"),
		},
	}

	if err := opts.validate(); err != nil {
		return serveOptions{}, err
	}
	return opts, nil
}

func (o serveOptions) validate() error {
	switch o.Transport {
	case transportStdio, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", o.Transport)
	}
	if o.CacheTTL <= 0 {
		return fmt.Errorf("cache-ttl must be positive, got %s", o.CacheTTL)
	}
	if o.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache-max-entries must be positive, got %d", o.CacheMaxEntries)
	}
	if o.BatchMaxSize <= 0 || o.BatchMaxSize > eventcache.DefaultMaxBatchSize {
		return fmt.Errorf("batch-max-size must be between 1 and %d, got %d", eventcache.DefaultMaxBatchSize, o.BatchMaxSize)
	}
	if o.FetchConcurrency <= 0 {
		return fmt.Errorf("fetch-concurrency must be positive, got %d", o.FetchConcurrency)
	}
	if o.APIBurst < 0 {
		return fmt.Errorf("api-burst must not be negative, got %d", o.APIBurst)
	}
	return nil
}

// serverConfig translates the options into the server context configuration.
func (o serveOptions) serverConfig(logger *slog.Logger, metrics *instrumentation.Metrics) server.Config {
	return server.Config{
		OAuthPath:       o.OAuthPath,
		CredentialsPath: o.CredentialsPath,
		Cache: eventcache.Config{
			TTL:              o.CacheTTL,
			MaxEntries:       o.CacheMaxEntries,
			MaxBatchSize:     o.BatchMaxSize,
			FetchConcurrency: o.FetchConcurrency,
		},
		RateLimit: o.APIRateLimit,
		Burst:     o.APIBurst,
		Logger:    logger,
		Metrics:   metrics,
	}
}

// newLogger writes to stderr because stdout carries the stdio protocol.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runServe(opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(os.Stderr, opts.Debug)
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", "error", err)
		}
	}()

	var metrics *instrumentation.Metrics
	if provider.Enabled() {
		metrics = provider.Metrics()
	}

	serverContext, err := server.NewServerContext(shutdownCtx, opts.serverConfig(logger, metrics))
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("error during server context shutdown", "error", err)
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("gcal-mcp", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	// readOnly is the inverse of yolo
	readOnly := !opts.Yolo
	if readOnly {
		logger.Info("starting server in read-only mode (use --yolo to enable write operations)")
	} else {
		logger.Info("starting server with write operations enabled (--yolo flag is set)")
	}

	if err := registerAllTools(mcpSrv, serverContext, readOnly); err != nil {
		return err
	}

	switch opts.Transport {
	case transportStdio:
		return runStdioServer(mcpSrv)
	case transportStreamableHTTP:
		healthChecker := server.NewHealthChecker(serverContext)

		metricsServer, err := startMetricsServer(opts.Metrics, provider, healthChecker, logger)
		if err != nil {
			return err
		}
		if metricsServer != nil {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := metricsServer.Shutdown(ctx); err != nil {
					logger.Warn("error during metrics server shutdown", "error", err)
				}
			}()
		}

		return runStreamableHTTPServer(shutdownCtx, mcpSrv, healthChecker, metrics, opts, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.Transport)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext, readOnly bool) error {
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, ctx, readOnly); err != nil {
		return fmt.Errorf("failed to register Calendar tools: %w", err)
	}
	if err := resources.RegisterCalendarResources(mcpSrv, ctx); err != nil {
		return fmt.Errorf("failed to register Calendar resources: %w", err)
	}
	return nil
}

// startMetricsServer starts the dedicated metrics port and waits until it is
// listening. It returns nil when metrics are disabled or exported elsewhere.
func startMetricsServer(config MetricsConfig, provider *instrumentation.Provider, health *server.HealthChecker, logger *slog.Logger) (*server.MetricsServer, error) {
	if !config.Enabled || !provider.ServesPrometheus() {
		return nil, nil
	}

	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    config.Addr,
		Enabled:                 true,
		InstrumentationProvider: provider,
		HealthChecker:           health,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}

	// ready is also closed when listening fails.
	if !metricsServer.Listening() {
		return nil, fmt.Errorf("metrics server failed to start: %w", <-metricsErr)
	}

	logger.Info("metrics server started", "addr", metricsServer.ListenAddr())
	return metricsServer, nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, health *server.HealthChecker, metrics *instrumentation.Metrics, opts serveOptions, logger *slog.Logger) error {
	httpServer, err := server.NewHTTPServer(mcpSrv, server.HTTPServerConfig{
		Addr:             opts.HTTPAddr,
		DisableStreaming: opts.DisableStreaming,
		HealthChecker:    health,
		Metrics:          metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		health.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}
