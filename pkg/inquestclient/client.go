// Package inquestclient provides a client SDK for the inquest gateway.
//
// It speaks the gateway's WebSocket RPC protocol: one connection carries
// concurrent calls correlated by frame id, and unsolicited event frames
// (operator alerts) are delivered on the Alerts channel.
//
// Example:
//
//	client, err := inquestclient.Dial(ctx, "127.0.0.1:7833",
//	    inquestclient.WithToken(os.Getenv("INQUEST_TOKEN")),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	result, err := client.Investigate(ctx, inquestclient.InvestigationRequest{
//	    EntityType: "wallet",
//	    EntityID:   "0xabc",
//	})
package inquestclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// maxFrameBytes bounds a single response frame read off the wire.
const maxFrameBytes = 10 << 20

// RPCError is a gateway-reported method failure, as opposed to a
// transport failure. Message is the server's error string.
type RPCError struct {
	Method  string
	Message string
}

func (e *RPCError) Error() string { return e.Method + ": " + e.Message }

// Client is one connection to an inquest gateway. Safe for concurrent use.
type Client struct {
	ws     *websocket.Conn
	logger *slog.Logger

	token      string
	httpClient *http.Client
	alertBuf   int

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan frame
	readErr error

	alerts chan Alert
}

// Dial connects and authenticates to a gateway. addr may be a bare
// host:port or a ws/wss/http/https URL; the /ws path is implied when
// none is given.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	c := &Client{
		logger:   slog.Default(),
		alertBuf: 16,
		pending:  make(map[uint64]chan frame),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.alerts = make(chan Alert, c.alertBuf)

	u, err := wsURL(addr, c.token)
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPClient: c.httpClient})
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	ws.SetReadLimit(maxFrameBytes)
	c.ws = ws

	go c.readLoop()
	return c, nil
}

// wsURL normalizes a gateway address into the dialable connect URL.
func wsURL(addr, token string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("gateway address: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("gateway address: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Close terminates the connection. In-flight calls fail and the Alerts
// channel is closed.
func (c *Client) Close() error {
	c.shutdown(net.ErrClosed)
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// Alerts delivers operator alerts pushed by the server. The channel is
// closed when the connection terminates.
func (c *Client) Alerts() <-chan Alert { return c.alerts }

// readLoop demultiplexes incoming frames: responses settle their pending
// call, alert events feed the Alerts channel.
func (c *Client) readLoop() {
	defer close(c.alerts)
	for {
		var f frame
		if err := wsjson.Read(context.Background(), c.ws, &f); err != nil {
			c.shutdown(err)
			return
		}

		switch f.Type {
		case frameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case frameTypeEvent:
			if f.Method != "alert" {
				continue
			}
			var a Alert
			if err := json.Unmarshal(f.Payload, &a); err != nil {
				c.logger.Warn("inquest client: malformed alert frame", "error", err)
				continue
			}
			select {
			case c.alerts <- a:
			default:
				c.logger.Warn("inquest client: alert dropped, consumer too slow", "kind", a.Kind)
			}
		}
	}
}

// shutdown records the terminal error and fails every pending call.
// Idempotent; the first error wins.
func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.readErr == nil {
		c.readErr = err
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

// call runs one RPC round trip. out may be nil when the response payload
// is not needed.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	var payload json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: marshal params: %w", method, err)
		}
		payload = data
	}

	id := c.nextID.Add(1)
	ch := make(chan frame, 1)

	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return fmt.Errorf("%s: connection down: %w", method, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := frame{Type: frameTypeRequest, ID: id, Method: method, Payload: payload}
	if err := wsjson.Write(ctx, c.ws, req); err != nil {
		return fmt.Errorf("%s: write: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			return fmt.Errorf("%s: connection down: %w", method, err)
		}
		if resp.Error != "" {
			return &RPCError{Method: method, Message: resp.Error}
		}
		if out != nil && len(resp.Payload) > 0 {
			if err := json.Unmarshal(resp.Payload, out); err != nil {
				return fmt.Errorf("%s: decode response: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Investigate runs one investigation to completion and returns the
// consolidated result.
func (c *Client) Investigate(ctx context.Context, req InvestigationRequest) (*InvestigationResult, error) {
	var res InvestigationResult
	if err := c.call(ctx, "investigate.run", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Investigation looks up a finished investigation by id. Available only
// when the server persists results.
func (c *Client) Investigation(ctx context.Context, investigationID string) (*InvestigationResult, error) {
	var res InvestigationResult
	params := map[string]string{"investigation_id": investigationID}
	if err := c.call(ctx, "investigate.get", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Handoffs returns an investigation's agent handoff audit trail.
func (c *Client) Handoffs(ctx context.Context, investigationID string) ([]Handoff, error) {
	var handoffs []Handoff
	params := map[string]string{"investigation_id": investigationID}
	if err := c.call(ctx, "investigate.handoffs", params, &handoffs); err != nil {
		return nil, err
	}
	return handoffs, nil
}

// CallBackend invokes a single backend operation directly.
func (c *Client) CallBackend(ctx context.Context, call BackendCall) (*BackendResult, error) {
	var res BackendResult
	if err := c.call(ctx, "backend.call", call, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Endpoints lists the registered backend endpoints.
func (c *Client) Endpoints(ctx context.Context) ([]Endpoint, error) {
	var endpoints []Endpoint
	if err := c.call(ctx, "endpoint.list", nil, &endpoints); err != nil {
		return nil, err
	}
	return endpoints, nil
}

// SetEndpointEnabled enables or disables an endpoint for future calls.
func (c *Client) SetEndpointEnabled(ctx context.Context, name string, enabled bool) error {
	method := "endpoint.disable"
	if enabled {
		method = "endpoint.enable"
	}
	return c.call(ctx, method, map[string]string{"name": name}, nil)
}

// InvalidateCache drops cached responses and reports how many entries
// were removed.
func (c *Client) InvalidateCache(ctx context.Context, inv CacheInvalidation) (int, error) {
	var out struct {
		Invalidated int `json:"invalidated"`
	}
	if err := c.call(ctx, "cache.invalidate", inv, &out); err != nil {
		return 0, err
	}
	return out.Invalidated, nil
}

// Status returns the service status snapshot.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.call(ctx, "status.get", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
