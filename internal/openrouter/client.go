// Package openrouter talks to the OpenRouter key provisioning API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/logger"
)

// DefaultMaxResponseBytes caps how much of an upstream body is buffered.
const DefaultMaxResponseBytes = 10 << 20

// Client issues keys against the provisioning endpoint using a server-held secret.
type Client struct {
	provisioningKey  string
	endpoint         string
	httpClient       *http.Client
	timeout          time.Duration
	maxResponseBytes int64
	logger           *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the provisioning endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient replaces the underlying HTTP client. The client is copied,
// so later options never modify the caller's value.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds the whole upstream exchange. It overrides the timeout
// of a client passed to WithHTTPClient, regardless of option order.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithMaxResponseBytes caps the upstream body size; larger bodies are rejected.
func WithMaxResponseBytes(limit int64) Option {
	return func(c *Client) {
		c.maxResponseBytes = limit
	}
}

// WithLogger sets the logger used for upstream call diagnostics.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) {
		c.logger = log
	}
}

// NewClient returns a Client that authenticates with the given provisioning key.
func NewClient(provisioningKey string, opts ...Option) *Client {
	c := &Client{
		provisioningKey:  provisioningKey,
		endpoint:         constant.DefaultUpstreamURL,
		maxResponseBytes: DefaultMaxResponseBytes,
		logger:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	httpClient := http.Client{Timeout: constant.DefaultUpstreamTimeout}
	if c.httpClient != nil {
		httpClient = *c.httpClient
	}
	if c.timeout > 0 {
		httpClient.Timeout = c.timeout
	}
	c.httpClient = &httpClient

	if c.logger == nil {
		c.logger = logger.Nop()
	}
	return c
}

// CreateKey performs exactly one provisioning call.
//
// Errors are classified by type: *ConnectionError when no response arrived,
// *APIError for a non-2xx answer. Any other error means the exchange
// completed but could not be interpreted.
func (c *Client) CreateKey(ctx context.Context, keyReq KeyRequest) (*KeyResponse, error) {
	payload, err := json.Marshal(keyReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode provisioning request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build provisioning request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.provisioningKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Calling OpenRouter provisioning API",
		"endpoint", c.endpoint,
		"name", keyReq.Name,
		"expires_at", keyReq.ExpiresAt,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Reason: c.redact(transportReason(err)), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenRouter response: %w", err)
	}
	if int64(len(body)) > c.maxResponseBytes {
		return nil, fmt.Errorf("OpenRouter response exceeds %d bytes", c.maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var details any
		if err := decodeJSON(body, &details); err != nil {
			details = map[string]any{"raw": string(body)}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Details: details}
	}

	var result map[string]any
	if err := decodeJSON(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode OpenRouter response: %w", err)
	}
	if result == nil {
		return nil, errors.New("OpenRouter response body is null")
	}

	return &KeyResponse{Key: extractKey(result), Body: result}, nil
}

// extractKey prefers a top-level "key" and falls back to "data.key".
func extractKey(body map[string]any) *string {
	if key, ok := body["key"].(string); ok && key != "" {
		return &key
	}
	if data, ok := body["data"].(map[string]any); ok {
		if key, ok := data["key"].(string); ok && key != "" {
			return &key
		}
	}
	return nil
}

// transportReason strips the method and URL that net/http prefixes to
// transport errors, leaving the underlying cause.
func transportReason(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}

// redact removes the provisioning key from text that may reach a caller.
func (c *Client) redact(s string) string {
	if c.provisioningKey == "" {
		return s
	}
	return strings.ReplaceAll(s, c.provisioningKey, "*****")
}

// decodeJSON decodes exactly one JSON value, keeping numbers as json.Number
// so they are echoed back unchanged.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
