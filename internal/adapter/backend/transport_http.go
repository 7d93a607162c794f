package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"inquest/internal/domain"
	"inquest/internal/infra/config"
)

// maxResponseBody caps how much of a backend response we read.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// httpConn is one keep-alive HTTP channel to an endpoint. Every handle owns
// its own client so the pool, not net/http, decides reuse; the transport is
// sized for a single socket.
type httpConn struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// HTTPDialer returns the DialFunc for http endpoints. resolveKey maps an
// endpoint's APIKeyRef to its secret; the registry provides it.
func HTTPDialer(cfg config.PoolConfig, resolveKey func(ref string) string) DialFunc {
	return func(_ context.Context, ep *domain.Endpoint) (Conn, error) {
		return &httpConn{
			client:  newEndpointHTTPClient(ep.Timeout, cfg),
			baseURL: strings.TrimRight(ep.Address, "/"),
			apiKey:  resolveKey(ep.APIKeyRef),
		}, nil
	}
}

// newEndpointHTTPClient builds a single-socket client bounded by the
// endpoint timeout. Connect gets a short slice of the budget, the response
// the rest.
func newEndpointHTTPClient(timeout time.Duration, cfg config.PoolConfig) *http.Client {
	connTimeout := timeout / 4
	if connTimeout <= 0 || connTimeout > 10*time.Second {
		connTimeout = 10 * time.Second
	}
	idleTimeout := cfg.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          1,
		MaxIdleConnsPerHost:   1,
		MaxConnsPerHost:       1,
		IdleConnTimeout:       idleTimeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Do performs a JSON POST to {address}/{operation} and returns the decoded
// response object. Non-200 statuses map into the error taxonomy; a 200 with
// an undecodable body is a protocol error.
func (c *httpConn) Do(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal params: %v", domain.ErrProtocol, err)
	}

	url := c.baseURL + "/" + strings.TrimLeft(operation, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrConnection, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapStatusError(httpResp.StatusCode, respBody)
	}

	var data map[string]any
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", domain.ErrProtocol, err)
	}
	return data, nil
}

// Close drops the idle socket. In-flight requests are unaffected.
func (c *httpConn) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// mapStatusError maps a non-200 backend status into the error taxonomy so
// the classifier and retry policy treat it correctly: gateway timeouts are
// retryable timeouts, unavailable upstreams are connection errors, anything
// else is a protocol error.
func mapStatusError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("backend error %d: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusRequestTimeout, http.StatusGatewayTimeout: // 408, 504
		return fmt.Errorf("%w: %s", domain.ErrTimeout, detail)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusTooManyRequests: // 502, 503, 429
		return fmt.Errorf("%w: %s", domain.ErrConnection, detail)
	default:
		return fmt.Errorf("%w: %s", domain.ErrProtocol, detail)
	}
}
