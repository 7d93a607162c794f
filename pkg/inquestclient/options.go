package inquestclient

import (
	"log/slog"
	"net/http"
)

// Option configures a Client before it dials.
type Option func(*Client)

// WithToken sets the gateway auth token, sent as the connect query parameter.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets a custom slog.Logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient sets the http.Client used for the WebSocket handshake,
// for callers that need custom TLS or proxy settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAlertBuffer sets the capacity of the Alerts channel. Alerts are
// dropped, not queued, once the buffer is full and the consumer lags.
func WithAlertBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.alertBuf = n
		}
	}
}
