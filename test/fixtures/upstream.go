package fixtures

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Standard values used across tests.
const (
	TestProvisioningKey = "sk-or-v1-provisioning-test-secret"
	TestIssuedKey       = "sk-or-v1-abc123"
)

// UpstreamCall is one request received by a FakeUpstream.
type UpstreamCall struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	RawBody       []byte
	// Body is RawBody decoded as a JSON object (nil if it was not one).
	Body map[string]any
}

// FakeUpstream is an httptest server standing in for the OpenRouter key API.
// It records every call and answers with a fixed status and body.
type FakeUpstream struct {
	*httptest.Server

	status int
	body   string

	mu    sync.Mutex
	calls []UpstreamCall
}

// NewFakeUpstream starts a fake upstream that answers every request with
// status and body. The server is closed when the test ends.
func NewFakeUpstream(t *testing.T, status int, body string) *FakeUpstream {
	t.Helper()

	f := &FakeUpstream{status: status, body: body}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)

	return f
}

// KeysURL is the provisioning endpoint path on the fake server.
func (f *FakeUpstream) KeysURL() string {
	return f.URL + "/api/v1/keys"
}

func (f *FakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	call := UpstreamCall{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		RawBody:       raw,
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		call.Body = decoded
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = io.WriteString(w, f.body)
}

// Calls returns a copy of the recorded calls.
func (f *FakeUpstream) Calls() []UpstreamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UpstreamCall(nil), f.calls...)
}

// LastCall returns the most recent call; it fails the test if there was none.
func (f *FakeUpstream) LastCall(t *testing.T) UpstreamCall {
	t.Helper()
	calls := f.Calls()
	if len(calls) == 0 {
		t.Fatalf("expected at least one upstream call, got none")
	}
	return calls[len(calls)-1]
}

// UnreachableURL returns the URL of a server that has already been shut
// down, so connecting to it is refused.
func UnreachableURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/api/v1/keys"
	srv.Close()
	return url
}
