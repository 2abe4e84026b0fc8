package provisioner

import "encoding/json"

// Request is the optional body of POST /.
type Request struct {
	// Name labels the issued key. Defaults to "temp-key-<YYYYMMDD-HHMMSS>" (UTC).
	Name *string `json:"name,omitempty"`
	// Limit is an optional credit limit in dollars, forwarded verbatim.
	Limit *json.Number `json:"limit,omitempty"`
}

// Response is returned when the upstream issued a key.
type Response struct {
	Success bool `json:"success"`
	// APIKey is null when the upstream body carried no key.
	APIKey       *string        `json:"api_key"`
	Name         string         `json:"name"`
	ExpiresAt    string         `json:"expires_at"`
	FullResponse map[string]any `json:"full_response"`
}

// ErrorResponse is returned when the upstream could not be reached or its
// answer could not be interpreted.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// UpstreamErrorResponse relays an upstream rejection. Details is always
// present and is null when the upstream error body was JSON null.
type UpstreamErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details"`
}

// RouteError is the flag-less shape used for routing and body parsing failures.
type RouteError struct {
	Error string `json:"error"`
}
