package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/openrouter"
)

// MockCreator is a mock type for the KeyCreator.
type MockCreator struct {
	mock.Mock
}

func (m *MockCreator) CreateKey(ctx context.Context, req openrouter.KeyRequest) (*openrouter.KeyResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	resp, ok := args.Get(0).(*openrouter.KeyResponse)
	if !ok {
		return nil, args.Error(1)
	}
	return resp, args.Error(1)
}

var fixedNow = time.Date(2026, time.October, 16, 9, 30, 15, 123456789, time.FixedZone("CEST", 2*60*60))

func setupRouter(creator KeyCreator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	h := NewHandler(logger.Nop(), creator)
	h.now = func() time.Time { return fixedNow }
	Register(router, h)

	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func keyPtr(s string) *string {
	return &s
}

func TestCreateKey_BuildsUpstreamRequest(t *testing.T) {
	five := json.Number("5.0")

	tests := []struct {
		name     string
		body     string
		expected openrouter.KeyRequest
	}{
		{
			name: "empty body uses defaults",
			body: "",
			expected: openrouter.KeyRequest{
				Name:      "temp-key-20261016-073015",
				ExpiresAt: "2026-10-17T07:30:15Z",
			},
		},
		{
			name: "empty object uses defaults",
			body: `{}`,
			expected: openrouter.KeyRequest{
				Name:      "temp-key-20261016-073015",
				ExpiresAt: "2026-10-17T07:30:15Z",
			},
		},
		{
			name: "name and limit forwarded",
			body: `{"name":"ci-runner","limit":5.0}`,
			expected: openrouter.KeyRequest{
				Name:      "ci-runner",
				ExpiresAt: "2026-10-17T07:30:15Z",
				Limit:     &five,
			},
		},
		{
			name: "null fields treated as absent",
			body: `{"name":null,"limit":null}`,
			expected: openrouter.KeyRequest{
				Name:      "temp-key-20261016-073015",
				ExpiresAt: "2026-10-17T07:30:15Z",
			},
		},
		{
			name: "unknown fields ignored and expiration not overridable",
			body: `{"name":"x","expires_at":"2030-01-01T00:00:00Z","team":"ml"}`,
			expected: openrouter.KeyRequest{
				Name:      "x",
				ExpiresAt: "2026-10-17T07:30:15Z",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := new(MockCreator)
			creator.On("CreateKey", mock.Anything, tt.expected).
				Return(&openrouter.KeyResponse{Key: keyPtr("sk-abc123"), Body: map[string]any{"key": "sk-abc123"}}, nil).
				Once()

			w := doRequest(setupRouter(creator), http.MethodPost, "/", tt.body)

			require.Equal(t, http.StatusOK, w.Code)
			creator.AssertExpectations(t)
		})
	}
}

func TestCreateKey_Success(t *testing.T) {
	creator := new(MockCreator)
	creator.On("CreateKey", mock.Anything, mock.Anything).Return(&openrouter.KeyResponse{
		Key:  keyPtr("sk-abc123"),
		Body: map[string]any{"key": "sk-abc123", "data": map[string]any{"name": "ci-runner"}},
	}, nil)

	w := doRequest(setupRouter(creator), http.MethodPost, "/", `{"name":"ci-runner"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"success": true,
		"api_key": "sk-abc123",
		"name": "ci-runner",
		"expires_at": "2026-10-17T07:30:15Z",
		"full_response": {"key": "sk-abc123", "data": {"name": "ci-runner"}}
	}`, w.Body.String())
}

func TestCreateKey_MissingKeyIsNull(t *testing.T) {
	creator := new(MockCreator)
	creator.On("CreateKey", mock.Anything, mock.Anything).Return(&openrouter.KeyResponse{
		Body: map[string]any{"data": map[string]any{}},
	}, nil)

	w := doRequest(setupRouter(creator), http.MethodPost, "/", "")

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response, "api_key")
	assert.Nil(t, response["api_key"])
	assert.Equal(t, true, response["success"])
}

func TestCreateKey_LogsOutcome(t *testing.T) {
	tests := []struct {
		name            string
		resp            *openrouter.KeyResponse
		expectedLevel   zapcore.Level
		expectedMessage string
	}{
		{
			name:            "key issued",
			resp:            &openrouter.KeyResponse{Key: keyPtr("sk-or-v1-abc123"), Body: map[string]any{"key": "sk-or-v1-abc123"}},
			expectedLevel:   zapcore.InfoLevel,
			expectedMessage: "Provisioned API key",
		},
		{
			name:            "no key in response",
			resp:            &openrouter.KeyResponse{Body: map[string]any{}},
			expectedLevel:   zapcore.WarnLevel,
			expectedMessage: "Relayed OpenRouter response without a key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := new(MockCreator)
			creator.On("CreateKey", mock.Anything, mock.Anything).Return(tt.resp, nil)

			core, logs := observer.New(zapcore.DebugLevel)
			gin.SetMode(gin.TestMode)
			router := gin.New()
			h := NewHandler(&logger.Logger{SugaredLogger: zap.New(core).Sugar()}, creator)
			h.now = func() time.Time { return fixedNow }
			Register(router, h)

			w := doRequest(router, http.MethodPost, "/", "")
			require.Equal(t, http.StatusOK, w.Code)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.expectedLevel, entries[0].Level)
			assert.Equal(t, tt.expectedMessage, entries[0].Message)
		})
	}
}

func TestCreateKey_InvalidJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "name=ci-runner"},
		{name: "truncated object", body: `{"name":`},
		{name: "whitespace only", body: "   "},
		{name: "array", body: `["ci-runner"]`},
		{name: "name is a number", body: `{"name":42}`},
		{name: "limit is not numeric", body: `{"limit":"lots"}`},
		{name: "limit is an object", body: `{"limit":{"usd":5}}`},
		{name: "oversized body", body: `{"name":"` + strings.Repeat("a", 1<<20) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := new(MockCreator)

			w := doRequest(setupRouter(creator), http.MethodPost, "/", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":"Invalid JSON"}`, w.Body.String())
			creator.AssertNotCalled(t, "CreateKey", mock.Anything, mock.Anything)
		})
	}
}

func TestNotFound(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "post to other path", method: http.MethodPost, path: "/keys"},
		{name: "post to nested path", method: http.MethodPost, path: "/api/v1/keys"},
		{name: "get root", method: http.MethodGet, path: "/"},
		{name: "put root", method: http.MethodPut, path: "/"},
		{name: "delete root", method: http.MethodDelete, path: "/"},
		{name: "get other path", method: http.MethodGet, path: "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := new(MockCreator)

			w := doRequest(setupRouter(creator), tt.method, tt.path, `{"name":"x"}`)

			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.JSONEq(t, `{"error":"Not found"}`, w.Body.String())
			creator.AssertNotCalled(t, "CreateKey", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateKey_ErrorMapping(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "upstream rejected",
			err:            &openrouter.APIError{StatusCode: http.StatusForbidden, Details: map[string]any{"message": "forbidden"}},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"success":false,"error":"OpenRouter API error: 403","details":{"message":"forbidden"}}`,
		},
		{
			name:           "upstream rejected with raw body",
			err:            &openrouter.APIError{StatusCode: http.StatusServiceUnavailable, Details: map[string]any{"raw": "maintenance"}},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"success":false,"error":"OpenRouter API error: 503","details":{"raw":"maintenance"}}`,
		},
		{
			name:           "upstream unreachable",
			err:            &openrouter.ConnectionError{Reason: "dial tcp 10.0.0.1:443: connect: connection refused"},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"success":false,"error":"Failed to connect to OpenRouter: dial tcp 10.0.0.1:443: connect: connection refused"}`,
		},
		{
			name:           "wrapped connection error still classified",
			err:            errors.Join(errors.New("attempt failed"), &openrouter.ConnectionError{Reason: "no such host"}),
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"success":false,"error":"Failed to connect to OpenRouter: no such host"}`,
		},
		{
			name:           "anything else",
			err:            errors.New("failed to decode OpenRouter response: invalid character '<'"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"success":false,"error":"Internal error: failed to decode OpenRouter response: invalid character '<'"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := new(MockCreator)
			creator.On("CreateKey", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			w := doRequest(setupRouter(creator), http.MethodPost, "/", `{"name":"ci-runner","limit":1}`)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			creator.AssertExpectations(t)
		})
	}
}
