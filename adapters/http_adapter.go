package adapters

import (
	"context"
	"net/url"
)

// HTTPResponse represents the response from an HTTP request.
type HTTPResponse struct {
	OK     bool
	Status int
	Body   []byte
}

// HTTPAdapter is an interface for HTTP communication.
// Implement this interface to use custom HTTP clients.
type HTTPAdapter interface {
	// Send posts a form to the specified endpoint.
	//
	// Parameters:
	//   - ctx: Bounds the request
	//   - endpoint: The full collector URL
	//   - form: Form fields, sent as application/x-www-form-urlencoded
	//
	// Returns the HTTP response, or an error when no response was received.
	Send(ctx context.Context, endpoint string, form url.Values) (*HTTPResponse, error)
}
