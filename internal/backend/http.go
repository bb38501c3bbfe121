package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/booking-assistant/pkg/logger"
	"github.com/capitalize-ai/booking-assistant/pkg/metrics"
)

const maxResponseBytes = 1 << 20

// HTTPClient talks to the booking backend over JSON/HTTP.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	logger   *logger.Logger
}

// NewHTTPClient creates a client posting every turn to endpoint.
func NewHTTPClient(endpoint string, timeout time.Duration, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   log,
	}
}

// Send posts req and decodes the reply.
func (c *HTTPClient) Send(ctx context.Context, req Request) (*Response, error) {
	mode := "query"
	if req.IsConfirmation() {
		mode = "confirmation"
	}

	ctx, span := otel.Tracer("booking-assistant/backend").Start(ctx, "backend.Send")
	defer span.End()
	span.SetAttributes(attribute.String("chat.mode", mode))

	start := time.Now()
	resp, status, err := c.do(ctx, req)
	metrics.RecordBackend(mode, status, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("booking backend request failed",
			zap.String("mode", mode),
			zap.String("status", status),
			zap.Error(err),
		)
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) do(ctx context.Context, req Request) (*Response, string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, "encode_error", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "encode_error", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if creds, ok := CredentialsFromContext(ctx); ok {
		creds.apply(httpReq)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, "unreachable", &TransportError{Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	status := strconv.Itoa(httpResp.StatusCode)
	if err != nil {
		return nil, status, &TransportError{StatusCode: httpResp.StatusCode, Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, status, &TransportError{
			StatusCode: httpResp.StatusCode,
			Detail:     errorDetail(body),
		}
	}

	resp, err := DecodeResponse(body)
	if err != nil {
		return nil, "malformed", err
	}
	return resp, status, nil
}
