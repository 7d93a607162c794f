// Package integration wires the investigation pipeline together the way
// cmd/inquest does: registry, pooled transports, resilient client, agents,
// orchestrator and gateway, exercised against in-process backend services.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// SkipIfShort skips the full-stack tests in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping full-stack test in short mode")
	}
}

// NewTestContext creates a context with timeout, cancelled on cleanup.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// AnalysisBackend is an in-process stand-in for one backend analysis
// service. It speaks the real wire protocol: JSON POST to /{operation},
// JSON object response. Responses are registered per operation; FailWith
// switches the whole backend to an error status.
type AnalysisBackend struct {
	srv *httptest.Server

	mu         sync.Mutex
	calls      map[string]int
	lastParams map[string]map[string]any
	responses  map[string]map[string]any
	failStatus int
}

// NewAnalysisBackend starts the fake service; it is closed on test cleanup.
func NewAnalysisBackend(t *testing.T) *AnalysisBackend {
	t.Helper()
	b := &AnalysisBackend{
		calls:      make(map[string]int),
		lastParams: make(map[string]map[string]any),
		responses:  make(map[string]map[string]any),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.srv.Close)
	return b
}

// URL is the endpoint address to register in config.
func (b *AnalysisBackend) URL() string { return b.srv.URL }

// Respond registers the payload returned for one operation.
func (b *AnalysisBackend) Respond(operation string, payload map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[operation] = payload
}

// FailWith makes every call answer with the given HTTP status. Zero
// restores normal responses.
func (b *AnalysisBackend) FailWith(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failStatus = status
}

// Calls reports how many requests one operation has received.
func (b *AnalysisBackend) Calls(operation string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[operation]
}

// LastParams returns the params of the most recent call to one operation.
func (b *AnalysisBackend) LastParams(operation string) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastParams[operation]
}

func (b *AnalysisBackend) handle(w http.ResponseWriter, r *http.Request) {
	op := strings.Trim(r.URL.Path, "/")

	var params map[string]any
	_ = json.NewDecoder(r.Body).Decode(&params)

	b.mu.Lock()
	b.calls[op]++
	b.lastParams[op] = params
	status := b.failStatus
	payload, ok := b.responses[op]
	b.mu.Unlock()

	if status != 0 {
		http.Error(w, "backend unavailable", status)
		return
	}
	if !ok {
		http.Error(w, "unknown operation", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
