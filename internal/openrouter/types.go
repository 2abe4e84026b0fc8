package openrouter

import (
	"encoding/json"
	"fmt"
)

// KeyRequest is the body sent to the provisioning endpoint.
type KeyRequest struct {
	Name      string `json:"name"`
	ExpiresAt string `json:"expires_at"`
	// Limit is the credit limit in dollars, forwarded as the exact literal the
	// caller sent. Nil means no limit and the field is omitted.
	Limit *json.Number `json:"limit,omitempty"`
}

// KeyResponse is a successful provisioning result.
type KeyResponse struct {
	// Key is the issued API key, nil when the upstream body carried none.
	Key *string
	// Body is the complete decoded upstream response.
	Body map[string]any
}

// APIError is returned when the upstream answered with a non-2xx status.
type APIError struct {
	StatusCode int
	// Details is the decoded error body, or {"raw": <text>} when it was not JSON.
	Details any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OpenRouter API error: %d", e.StatusCode)
}

// ConnectionError is returned when no upstream response was received at all
// (DNS, TCP, TLS, timeout or cancellation).
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	return "Failed to connect to OpenRouter: " + e.Reason
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
