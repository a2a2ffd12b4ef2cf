package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultControlTimeout bounds every control request. The daemon is local and
// expected to answer immediately, so a slow answer is treated as a failure.
const DefaultControlTimeout = 100 * time.Millisecond

// Client talks to the daemon's control API.
type Client struct {
	endpoint   ServiceEndpoint
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a control API client. A zero timeout selects
// DefaultControlTimeout.
func NewClient(logger zerolog.Logger, endpoint ServiceEndpoint, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultControlTimeout
	}
	return &Client{
		endpoint: endpoint,
		baseURL:  endpoint.ControlURL(),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "fetch-client").Logger(),
	}
}

// Endpoint returns the endpoint the client was built for.
func (c *Client) Endpoint() ServiceEndpoint { return c.endpoint }

// Do sends a JSON request to path and decodes a JSON response into out when
// out is non-nil. A nil body sends no payload. Any failure, including a
// non-2xx status, is returned as an *Error of kind ErrControlRequest.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (err error) {
	method = strings.ToUpper(method)
	path = strings.TrimPrefix(path, "/")
	route := routeLabel(path)

	start := time.Now()
	defer func() {
		controlRequestsTotal.WithLabelValues(method, route, resultLabel(err)).Inc()
		controlRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}()

	raw, err := c.send(ctx, method, path, body)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("route", route).Msg("control request failed")
		return &Error{
			Kind:    ErrControlRequest,
			Message: fmt.Sprintf("error with fetch-service %s %s", method, route),
			Err:     err,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{
			Kind:    ErrControlRequest,
			Message: fmt.Sprintf("error with fetch-service %s %s", method, route),
			Details: string(raw),
			Err:     fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.endpoint.Username, c.endpoint.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

// Status returns the daemon's decoded status document.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var status map[string]any
	if err := c.Do(ctx, http.MethodGet, "status", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}
