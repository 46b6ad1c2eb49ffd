package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/gcal-mcp/internal/eventcache"
	"github.com/teemow/gcal-mcp/internal/google"
	"github.com/teemow/gcal-mcp/internal/instrumentation"
	"github.com/teemow/gcal-mcp/internal/logging"
)

const (
	// DefaultBatchURL is the Calendar API batch endpoint.
	DefaultBatchURL = "https://www.googleapis.com/batch/calendar/v3"

	// DefaultRateLimit is the default sustained request rate against the API.
	DefaultRateLimit = rate.Limit(10)

	// DefaultBurst is the default number of requests allowed in a burst.
	DefaultBurst = 20

	// incrementalFields is all a revalidation needs to tell whether anything changed.
	incrementalFields = "items(id),nextPageToken,nextSyncToken"

	// maxBatchResponseSize bounds how much of a batch response is read.
	maxBatchResponseSize = 32 << 20
)

// Client wraps the Google Calendar service for one account. It implements
// eventcache.Transport and eventcache.BatchTransport.
type Client struct {
	svc        *calendar.Service
	httpClient *http.Client
	batchURL   string
	endpoint   string
	account    string

	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

var (
	_ eventcache.Transport      = (*Client)(nil)
	_ eventcache.BatchTransport = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithBatchURL overrides the batch endpoint.
func WithBatchURL(url string) Option {
	return func(c *Client) { c.batchURL = url }
}

// WithEndpoint overrides the Calendar API base URL, mostly for tests.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithRateLimit sets the client side request rate limit. A zero limit
// disables limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// NewClient creates a Calendar client that sends every request through
// httpClient, which is expected to handle authorization.
func NewClient(ctx context.Context, account string, httpClient *http.Client, opts ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client cannot be nil")
	}

	c := &Client{
		httpClient: httpClient,
		batchURL:   DefaultBatchURL,
		account:    account,
		limiter:    rate.NewLimiter(DefaultRateLimit, DefaultBurst),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithAccount(logging.WithService(c.logger, instrumentation.ServiceCalendar), account)

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(c.endpoint))
	}

	svc, err := calendar.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	c.svc = svc

	return c, nil
}

// NewClientForAccount creates a Calendar client authorized with the stored
// token of account.
func NewClientForAccount(ctx context.Context, account string, conf *oauth2.Config, tokenProvider google.TokenProvider, opts ...Option) (*Client, error) {
	if tokenProvider == nil {
		return nil, fmt.Errorf("token provider cannot be nil")
	}
	if conf == nil {
		return nil, fmt.Errorf("OAuth config cannot be nil")
	}

	token, err := tokenProvider.GetTokenForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to get Google OAuth token for account %s: %w", account, err)
	}

	// The token source outlives the request that triggered client creation.
	httpClient := google.NewHTTPClient(context.WithoutCancel(ctx), conf, token)
	return NewClient(ctx, account, httpClient, opts...)
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

// call runs one API operation under the rate limiter, a span and the
// operation metrics.
func (c *Client) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, operation)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			instrumentation.SetSpanError(span, err)
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, operation, status, time.Since(start))

	return err
}

// ListEvents fetches one page of events for q, expanded to single instances
// and ordered by start time.
func (c *Client) ListEvents(ctx context.Context, q eventcache.Query, fields string) (*calendar.Events, error) {
	var events *calendar.Events
	err := c.call(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		call := c.svc.Events.List(q.ResourceID).
			TimeMin(q.RangeStart).
			TimeMax(q.RangeEnd).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		if q.MaxResults > 0 {
			call = call.MaxResults(q.MaxResults)
		}
		if fields != "" {
			call = call.Fields(googleapi.Field(fields))
		}

		var err error
		events, err = call.Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// ListEventsIncremental lists the events changed since syncToken. It returns
// eventcache.ErrTokenExpired when the API answers 410 Gone.
func (c *Client) ListEventsIncremental(ctx context.Context, resourceID, syncToken string) (*calendar.Events, error) {
	var events *calendar.Events
	err := c.call(ctx, instrumentation.OperationSync, func(ctx context.Context) error {
		var err error
		events, err = c.svc.Events.List(resourceID).
			SyncToken(syncToken).
			Fields(incrementalFields).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		if isStatus(err, http.StatusGone) {
			return nil, eventcache.ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to sync events: %w", err)
	}
	return events, nil
}

// SendBatchRequest posts a multipart/mixed batch body to the batch endpoint
// and returns the raw response.
func (c *Client) SendBatchRequest(ctx context.Context, body []byte, boundary string) (*eventcache.BatchHTTPResponse, error) {
	var resp *eventcache.BatchHTTPResponse
	err := c.call(ctx, instrumentation.OperationBatch, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.batchURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create batch request: %w", err)
		}
		req.Header.Set("Content-Type", "multipart/mixed; boundary="+boundary)

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBatchResponseSize))
		if err != nil {
			return fmt.Errorf("failed to read batch response: %w", err)
		}

		resp = &eventcache.BatchHTTPResponse{
			StatusCode:  httpResp.StatusCode,
			ContentType: httpResp.Header.Get("Content-Type"),
			Body:        data,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}

	c.logger.Debug("batch request completed",
		slog.Int(logging.KeyStatus, resp.StatusCode),
		slog.Int("bytes", len(resp.Body)))

	return resp, nil
}

// ListCalendars lists all calendars accessible to the user
func (c *Client) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	var calendars []CalendarInfo
	err := c.call(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		return c.svc.CalendarList.List().Pages(ctx, func(list *calendar.CalendarList) error {
			for _, entry := range list.Items {
				calendars = append(calendars, toCalendarInfo(entry))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return calendars, nil
}

// GetEvent retrieves a specific event by ID
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*calendar.Event, error) {
	var event *calendar.Event
	err := c.call(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		event, err = c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// CreateEvent creates a new calendar event
func (c *Client) CreateEvent(ctx context.Context, calendarID string, input EventInput) (*calendar.Event, error) {
	var created *calendar.Event
	err := c.call(ctx, instrumentation.OperationCreate, func(ctx context.Context) error {
		var err error
		created, err = c.svc.Events.Insert(calendarID, input.toEvent()).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return created, nil
}

// PatchEvent changes only the fields set in patch.
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, patch EventPatch) (*calendar.Event, error) {
	var updated *calendar.Event
	err := c.call(ctx, instrumentation.OperationPatch, func(ctx context.Context) error {
		var err error
		updated, err = c.svc.Events.Patch(calendarID, eventID, patch.toEvent()).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return updated, nil
}

// DeleteEvent deletes a calendar event
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.call(ctx, instrumentation.OperationDelete, func(ctx context.Context) error {
		return c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
