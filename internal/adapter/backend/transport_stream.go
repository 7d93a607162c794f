package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"inquest/internal/domain"
	"inquest/internal/infra/config"
)

// streamFrame is the envelope exchanged with stream endpoints. The same
// shape the gateway speaks: a request carries method and payload, the
// response echoes the id.
type streamFrame struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// streamConn is one persistent WebSocket session to a stream endpoint. A
// handle is owned by one caller at a time, so frames never interleave;
// request/response pairing is a strict echo of the id.
type streamConn struct {
	ws     *websocket.Conn
	nextID uint64
}

// StreamDialer returns the DialFunc for stream endpoints.
func StreamDialer(_ config.PoolConfig, resolveKey func(ref string) string) DialFunc {
	return func(ctx context.Context, ep *domain.Endpoint) (Conn, error) {
		opts := &websocket.DialOptions{}
		if key := resolveKey(ep.APIKeyRef); key != "" {
			opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + key}}
		}

		ws, _, err := websocket.Dial(ctx, ep.Address, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrConnection, ep.Name, err)
		}
		ws.SetReadLimit(maxResponseBody)
		return &streamConn{ws: ws}, nil
	}
}

// Do sends one request frame and reads the matching response frame.
func (c *streamConn) Do(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal params: %v", domain.ErrProtocol, err)
	}

	c.nextID++
	req := streamFrame{
		Type:    "request",
		ID:      c.nextID,
		Method:  operation,
		Payload: payload,
	}
	if err := wsjson.Write(ctx, c.ws, req); err != nil {
		return nil, wrapStreamErr("write frame", err)
	}

	var resp streamFrame
	if err := wsjson.Read(ctx, c.ws, &resp); err != nil {
		return nil, wrapStreamErr("read frame", err)
	}

	if resp.ID != req.ID || resp.Type != "response" {
		return nil, fmt.Errorf("%w: frame mismatch: got type %q id %d, want id %d",
			domain.ErrProtocol, resp.Type, resp.ID, req.ID)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrProtocol, resp.Error)
	}

	var data map[string]any
	if len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, &data); err != nil {
			return nil, fmt.Errorf("%w: unmarshal payload: %v", domain.ErrProtocol, err)
		}
	}
	return data, nil
}

func (c *streamConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// wrapStreamErr distinguishes deadline expiry from a broken session.
func wrapStreamErr(op string, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrConnection, op, err)
}
