package constant

import "time"

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = "8000"

	DefaultUpstreamURL     = "https://openrouter.ai/api/v1/keys"
	DefaultUpstreamTimeout = 30 * time.Second

	// KeyLifetime is how long every issued key stays valid, regardless of caller input.
	KeyLifetime = 24 * time.Hour

	// ExpiresAtLayout is the upstream expires_at format (second precision, UTC, trailing Z).
	ExpiresAtLayout = "2006-01-02T15:04:05Z"
	// DefaultNameLayout formats the timestamp suffix of generated key names.
	DefaultNameLayout = "20060102-150405"
	DefaultNamePrefix = "temp-key-"

	// MaxRequestBodyBytes caps the inbound request body.
	MaxRequestBodyBytes = 1 << 20

	ShutdownTimeout = 15 * time.Second

	// Header configuration constants.
	HeaderRequestID = "X-Request-ID"
)
