package eventcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/gcal-mcp/internal/instrumentation"
	"github.com/teemow/gcal-mcp/internal/logging"
)

// DefaultMaxBatchSize is the largest number of sub-requests the Calendar API
// accepts in one batch.
const DefaultMaxBatchSize = 50

const batchPathPrefix = "/calendar/v3/calendars/"

// BatchClient sends list-events queries as one multipart/mixed request.
type BatchClient struct {
	transport   BatchTransport
	newBoundary func() string
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
}

// NewBatchClient creates a BatchClient on top of transport.
func NewBatchClient(transport BatchTransport, logger *slog.Logger, metrics *instrumentation.Metrics) *BatchClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchClient{
		transport:   transport,
		newBoundary: newBoundary,
		logger:      logging.WithService(logger, "eventcache.batch"),
		metrics:     metrics,
	}
}

func newBoundary() string {
	return "batch_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SendBatch sends queries in a single batch and returns one response per
// query, in query order. A non-nil error means the batch as a whole failed and
// none of the responses are usable.
func (c *BatchClient) SendBatch(ctx context.Context, queries []Query) ([]BatchSubResponse, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	ctx, span := instrumentation.StartSpan(ctx, "eventcache.SendBatch",
		attribute.Int("batch.size", len(queries)))
	defer span.End()

	boundary := c.newBoundary()
	body := EncodeBatch(boundary, queries)

	resp, err := c.transport.SendBatchRequest(ctx, body, boundary)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch request failed")
		return nil, fmt.Errorf("failed to send batch request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := protocolErrorf("batch request returned HTTP %d", resp.StatusCode)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	responses, parts, err := DecodeBatch(resp.ContentType, resp.Body, queries)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch response could not be decoded")
		return nil, err
	}

	if parts != len(queries) {
		c.logger.Warn("batch response part count does not match request count",
			slog.Int("requests", len(queries)),
			slog.Int("parts", parts))
		c.metrics.RecordBatchAnomaly(ctx)
		span.SetAttributes(attribute.Int("batch.parts", parts))
	}

	return responses, nil
}

// EncodeBatch renders queries as a multipart/mixed body delimited by boundary.
// Each part is one GET request; its Content-ID is only for diagnostics since
// responses are matched by position.
func EncodeBatch(boundary string, queries []Query) []byte {
	var b bytes.Buffer
	for i, q := range queries {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: application/http\r\n")
		fmt.Fprintf(&b, "Content-ID: <item-%d>\r\n\r\n", i+1)
		fmt.Fprintf(&b, "GET %s\r\n\r\n", subRequestPath(q))
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}

func subRequestPath(q Query) string {
	params := url.Values{}
	params.Set("timeMin", q.RangeStart)
	params.Set("timeMax", q.RangeEnd)
	if q.MaxResults > 0 {
		params.Set("maxResults", strconv.FormatInt(q.MaxResults, 10))
	}
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")
	params.Set("fields", EventFields)

	return batchPathPrefix + url.PathEscape(q.ResourceID) + "/events?" + params.Encode()
}

// DecodeBatch maps a multipart batch response onto queries by position. It
// also returns the number of parts found so callers can report mismatches.
// Positions without a part come back with Missing set and no events.
func DecodeBatch(contentType string, body []byte, queries []Query) ([]BatchSubResponse, int, error) {
	boundary, err := boundaryFromContentType(contentType)
	if err != nil {
		return nil, 0, err
	}

	parts := splitParts(string(body), boundary)
	if len(parts) == 0 && len(queries) > 0 {
		return nil, 0, protocolErrorf("batch response contains no parts")
	}

	responses := make([]BatchSubResponse, len(queries))
	for i, q := range queries {
		responses[i].ResourceID = q.ResourceID
		if i >= len(parts) {
			responses[i].Missing = true
			responses[i].Events = []Event{}
			continue
		}

		outcome, err := decodePart(parts[i])
		if err != nil {
			err.Reason = fmt.Sprintf("part %d (%s): %s", i+1, q.ResourceID, err.Reason)
			return nil, len(parts), err
		}

		switch o := outcome.(type) {
		case partSuccess:
			responses[i].Events = o.events
			responses[i].SyncToken = o.syncToken
		case partFailure:
			responses[i].Err = &APIError{Status: o.status, Message: o.message}
		}
	}

	return responses, len(parts), nil
}

// boundaryFromContentType extracts the multipart boundary parameter.
func boundaryFromContentType(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", &ProtocolError{Reason: "invalid response content type", Err: err}
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", protocolErrorf("response content type %q is not multipart", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", protocolErrorf("response content type has no boundary")
	}
	return boundary, nil
}

// splitParts returns the inner parts of a multipart body. The preamble before
// the first delimiter and anything after the closing delimiter are dropped.
// A body cut short before its closing delimiter keeps the parts it has.
// Blank parts between delimiters are kept so positions stay aligned; only a
// blank tail after the last delimiter is dropped.
func splitParts(body, boundary string) []string {
	segments := strings.Split(body, "--"+boundary)
	if len(segments) < 2 {
		return nil
	}

	inner := segments[1:]
	var parts []string
	for i, seg := range inner {
		if strings.HasPrefix(seg, "--") {
			break
		}
		seg = strings.TrimPrefix(seg, "\r\n")
		seg = strings.TrimPrefix(seg, "\n")
		if i == len(inner)-1 && strings.TrimSpace(seg) == "" {
			break
		}
		parts = append(parts, seg)
	}
	return parts
}

// parsePartStatus finds the embedded HTTP status line of a part.
func parsePartStatus(part string) (int, error) {
	for _, line := range strings.Split(part, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "HTTP/") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, protocolErrorf("malformed status line %q", line)
		}
		status, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, &ProtocolError{Reason: fmt.Sprintf("malformed status line %q", line), Err: err}
		}
		return status, nil
	}
	return 0, protocolErrorf("no status line")
}

// extractJSON returns the text between the first '{' and the last '}'.
// Each part carries exactly one JSON object, so this is the whole payload.
func extractJSON(part string) ([]byte, bool) {
	start := strings.Index(part, "{")
	end := strings.LastIndex(part, "}")
	if start < 0 || end < start {
		return nil, false
	}
	return []byte(part[start : end+1]), true
}

// partOutcome is either partSuccess or partFailure.
type partOutcome interface {
	isPartOutcome()
}

type partSuccess struct {
	events    []Event
	syncToken string
}

type partFailure struct {
	status  int
	message string
}

func (partSuccess) isPartOutcome() {}
func (partFailure) isPartOutcome() {}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodePart(part string) (partOutcome, *ProtocolError) {
	status, err := parsePartStatus(part)
	if err != nil {
		return nil, err.(*ProtocolError)
	}

	payload, ok := extractJSON(part)

	if status < 200 || status > 299 {
		failure := partFailure{status: status}
		if ok {
			var body apiErrorBody
			if json.Unmarshal(payload, &body) == nil {
				failure.message = body.Error.Message
			}
		}
		if failure.message == "" {
			failure.message = fmt.Sprintf("HTTP %d", status)
		}
		return failure, nil
	}

	if !ok {
		return nil, protocolErrorf("no JSON body")
	}

	var page calendar.Events
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, &ProtocolError{Reason: "invalid JSON body", Err: err}
	}

	return partSuccess{
		events:    TrimEvents(page.Items),
		syncToken: page.NextSyncToken,
	}, nil
}
