package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds a single collector request.
const DefaultHTTPTimeout = 30 * time.Second

// the collector never answers with more than a small JSON object
const maxResponseBody = 1 << 20

// NetHTTPAdapter is the standard HTTP adapter implementation using net/http package.
type NetHTTPAdapter struct {
	client    *http.Client
	userAgent string
}

// Ensure NetHTTPAdapter implements HTTPAdapter interface
var _ HTTPAdapter = (*NetHTTPAdapter)(nil)

// NewNetHTTPAdapter creates a new NetHTTPAdapter instance.
func NewNetHTTPAdapter(userAgent string) *NetHTTPAdapter {
	return NewNetHTTPAdapterWithClient(&http.Client{Timeout: DefaultHTTPTimeout}, userAgent)
}

// NewNetHTTPAdapterWithClient wraps a caller-configured client.
func NewNetHTTPAdapterWithClient(client *http.Client, userAgent string) *NetHTTPAdapter {
	return &NetHTTPAdapter{client: client, userAgent: userAgent}
}

// Send posts the form and reads the response body.
func (h *NetHTTPAdapter) Send(ctx context.Context, endpoint string, form url.Values) (*HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &HTTPResponse{
		Status: resp.StatusCode,
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Body:   body,
	}, nil
}
