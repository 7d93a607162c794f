package backend

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"inquest/internal/domain"
	"inquest/internal/infra/config"
	"inquest/internal/infra/metrics"
)

// Conn is one live transport handle. The http and stream dialers in this
// package provide the implementations.
type Conn interface {
	// Do issues one operation against the endpoint and decodes the JSON
	// response body.
	Do(ctx context.Context, operation string, params map[string]any) (map[string]any, error)
	Close() error
}

// DialFunc opens a fresh handle for an endpoint.
type DialFunc func(ctx context.Context, ep *domain.Endpoint) (Conn, error)

// TransportDialer routes dialing by the endpoint's declared transport.
func TransportDialer(cfg config.PoolConfig, resolveKey func(ref string) string) DialFunc {
	httpDial := HTTPDialer(cfg, resolveKey)
	streamDial := StreamDialer(cfg, resolveKey)
	return func(ctx context.Context, ep *domain.Endpoint) (Conn, error) {
		if ep.Transport == domain.TransportStream {
			return streamDial(ctx, ep)
		}
		return httpDial(ctx, ep)
	}
}

// Handle is a checked-out pool entry. Between Checkout and Checkin it is
// owned exclusively by the caller; the pool touches it again only after
// Checkin.
type Handle struct {
	conn    Conn
	pooled  bool
	metrics domain.ConnectionMetrics
}

// Do runs one operation over the handle and updates its usage bookkeeping.
func (h *Handle) Do(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	h.metrics.RequestCount++
	data, err := h.conn.Do(ctx, operation, params)
	if err != nil {
		h.metrics.ErrorCount++
		h.metrics.LastError = err.Error()
	}
	return data, err
}

// Metrics returns a copy of the handle's bookkeeping.
func (h *Handle) Metrics() domain.ConnectionMetrics {
	return h.metrics
}

// Pool keeps up to MaxIdlePerEndpoint reusable handles per endpoint.
// Checkouts beyond the cap get a single-use handle that is closed on
// checkin rather than pooled.
type Pool struct {
	dial       DialFunc
	maxPooled  int
	staleAfter time.Duration
	m          *metrics.Metrics

	mu      sync.Mutex
	buckets map[string]*poolBucket
}

// poolBucket serializes checkout/checkin for one endpoint. Distinct
// endpoints never contend.
type poolBucket struct {
	mu    sync.Mutex
	idle  []*Handle
	total int // pooled handles, idle plus checked out
}

// NewPool builds the pool around a dialer. cfg supplies the idle cap and
// staleness window.
func NewPool(dial DialFunc, cfg config.PoolConfig, m *metrics.Metrics) *Pool {
	maxPooled := cfg.MaxIdlePerEndpoint
	if maxPooled <= 0 {
		maxPooled = 5
	}
	staleAfter := cfg.IdleStaleAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Pool{
		dial:       dial,
		maxPooled:  maxPooled,
		staleAfter: staleAfter,
		m:          m,
		buckets:    make(map[string]*poolBucket),
	}
}

func (p *Pool) bucket(endpoint string) *poolBucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[endpoint]
	if !ok {
		b = &poolBucket{}
		p.buckets[endpoint] = b
	}
	return b
}

// Checkout returns an idle handle when one exists, dials a new pooled handle
// while under the cap, and otherwise dials a single-use handle. Dialing
// happens outside the bucket lock; the pooled slot is reserved first so
// concurrent checkouts respect the cap.
func (p *Pool) Checkout(ctx context.Context, ep *domain.Endpoint) (*Handle, error) {
	b := p.bucket(ep.Name)

	b.mu.Lock()
	if n := len(b.idle); n > 0 {
		h := b.idle[n-1]
		b.idle = b.idle[:n-1]
		h.metrics.State = domain.ConnActive
		p.gauge(ep.Name, len(b.idle))
		b.mu.Unlock()
		return h, nil
	}
	pooled := b.total < p.maxPooled
	if pooled {
		b.total++
	}
	b.mu.Unlock()

	conn, err := p.dial(ctx, ep)
	if err != nil {
		if pooled {
			b.mu.Lock()
			b.total--
			b.mu.Unlock()
		}
		return nil, err
	}

	now := time.Now()
	return &Handle{
		conn:   conn,
		pooled: pooled,
		metrics: domain.ConnectionMetrics{
			ID:           ulid.Make().String(),
			EndpointName: ep.Name,
			State:        domain.ConnActive,
			CreatedAt:    now,
			LastUsedAt:   now,
		},
	}, nil
}

// Checkin returns a healthy pooled handle to the idle set. Failed and
// single-use handles are closed instead of pooled.
func (p *Pool) Checkin(h *Handle, success bool) {
	if h == nil {
		return
	}
	b := p.bucket(h.metrics.EndpointName)

	b.mu.Lock()
	defer b.mu.Unlock()

	h.metrics.LastUsedAt = time.Now()
	if !success || !h.pooled {
		h.metrics.State = domain.ConnClosed
		if h.pooled {
			b.total--
		}
		_ = h.conn.Close()
		p.gauge(h.metrics.EndpointName, len(b.idle))
		return
	}
	h.metrics.State = domain.ConnIdle
	b.idle = append(b.idle, h)
	p.gauge(h.metrics.EndpointName, len(b.idle))
}

// Sweep closes idle handles not used since the staleness window and returns
// how many were evicted. The janitor calls this on its schedule.
func (p *Pool) Sweep(now time.Time) int {
	p.mu.Lock()
	buckets := make(map[string]*poolBucket, len(p.buckets))
	for name, b := range p.buckets {
		buckets[name] = b
	}
	p.mu.Unlock()

	evicted := 0
	for name, b := range buckets {
		b.mu.Lock()
		kept := b.idle[:0]
		for _, h := range b.idle {
			if now.Sub(h.metrics.LastUsedAt) > p.staleAfter {
				h.metrics.State = domain.ConnClosed
				_ = h.conn.Close()
				b.total--
				evicted++
				continue
			}
			kept = append(kept, h)
		}
		b.idle = kept
		p.gauge(name, len(kept))
		b.mu.Unlock()
	}
	return evicted
}

// Snapshot reports the idle handles' bookkeeping per endpoint. Checked-out
// handles belong to their callers and are not inspected.
func (p *Pool) Snapshot() []domain.ConnectionMetrics {
	p.mu.Lock()
	buckets := make([]*poolBucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.mu.Unlock()

	var out []domain.ConnectionMetrics
	for _, b := range buckets {
		b.mu.Lock()
		for _, h := range b.idle {
			out = append(out, h.metrics)
		}
		b.mu.Unlock()
	}
	return out
}

// Close shuts every idle handle. In-flight handles close on their own
// checkin.
func (p *Pool) Close() {
	p.mu.Lock()
	buckets := make([]*poolBucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.mu.Unlock()

	for _, b := range buckets {
		b.mu.Lock()
		for _, h := range b.idle {
			h.metrics.State = domain.ConnClosed
			_ = h.conn.Close()
			b.total--
		}
		b.idle = nil
		b.mu.Unlock()
	}
}

func (p *Pool) gauge(endpoint string, idle int) {
	if p.m != nil {
		p.m.PoolIdle.WithLabelValues(endpoint).Set(float64(idle))
	}
}
