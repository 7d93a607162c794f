package backend

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"inquest/internal/domain"
	"inquest/internal/infra/config"
	"inquest/internal/infra/metrics"
	"inquest/internal/infra/tracer"
)

// CallOptions tunes one Call.
type CallOptions struct {
	UseCache bool
	CacheTTL time.Duration
}

// ClientDeps carries everything a Client needs. Registry is required; the
// rest degrade gracefully when nil (no cache, no schemas, no metrics).
type ClientDeps struct {
	Registry *Registry
	Pool     *Pool
	Cache    *ResponseCache
	Schemas  *SchemaIndex
	Retry    config.RetryConfig
	Recovery time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Notify   BreakerNotifyFunc
}

// Client is the resilient call path to registered endpoints: breaker, cache,
// pooled connection, bounded retry, rolling metrics. One instance serves all
// endpoints; per-endpoint state lives in the breaker map, the pool buckets
// and the stats ledger.
type Client struct {
	registry *Registry
	pool     *Pool
	cache    *ResponseCache
	schemas  *SchemaIndex
	retry    config.RetryConfig
	recovery time.Duration
	logger   *slog.Logger
	m        *metrics.Metrics
	notify   BreakerNotifyFunc
	stats    *statsLedger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewClient builds the client. Breakers are created lazily, one per
// endpoint, on first call.
func NewClient(deps ClientDeps) *Client {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := deps.Retry
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 4 * time.Second
	}
	if retry.MaxDelay < retry.BaseDelay {
		retry.MaxDelay = 10 * time.Second
	}
	if retry.Multiplier < 1.0 {
		retry.Multiplier = 2.0
	}

	return &Client{
		registry: deps.Registry,
		pool:     deps.Pool,
		cache:    deps.Cache,
		schemas:  deps.Schemas,
		retry:    retry,
		recovery: deps.Recovery,
		logger:   logger,
		m:        deps.Metrics,
		notify:   deps.Notify,
		stats:    newStatsLedger(),
		breakers: make(map[string]*Breaker),
	}
}

// Call issues one operation against a registered endpoint. The returned
// CallResult is never nil: failures come back as a value with Success=false
// and the classified code, alongside the error for callers that branch on
// sentinels. Transient failures retry with exponential backoff; everything
// else surfaces after the first attempt.
func (c *Client) Call(ctx context.Context, endpointName, operation string, params map[string]any, opts CallOptions) (*domain.CallResult, error) {
	start := time.Now()
	ctx, span := tracer.StartSpan(ctx, "backend.call",
		trace.WithAttributes(
			tracer.StringAttr("endpoint.name", endpointName),
			tracer.StringAttr("endpoint.operation", operation),
		),
	)
	defer span.End()

	ep, err := c.registry.Resolve(endpointName)
	if err != nil {
		tracer.RecordError(span, err)
		return c.failure(endpointName, start, err), err
	}

	br := c.breaker(ep)
	if br.State() == domain.BreakerOpen {
		err := domain.NewSubSystemError("backend", "Client.Call", domain.ErrCircuitOpen, endpointName)
		tracer.RecordError(span, err)
		c.countCall(endpointName, err)
		return c.failure(endpointName, start, err), err
	}

	if opts.UseCache {
		if data, ok := c.cacheGet(ctx, endpointName, operation, params); ok {
			tracer.SetOK(span)
			if c.m != nil {
				c.m.CallsTotal.WithLabelValues(endpointName, "cached").Inc()
			}
			return &domain.CallResult{
				Success:       true,
				Data:          data,
				ExecutionTime: time.Since(start),
				Cached:        true,
				EndpointName:  endpointName,
			}, nil
		}
	}

	data, err := c.attempt(ctx, ep, br, operation, params)
	if err != nil {
		tracer.RecordError(span, err)
		c.countCall(endpointName, err)
		return c.failure(endpointName, start, err), err
	}

	if opts.UseCache {
		c.cacheSet(ctx, endpointName, operation, params, data, opts.CacheTTL)
	}

	tracer.SetOK(span)
	c.countCall(endpointName, nil)
	return &domain.CallResult{
		Success:       true,
		Data:          data,
		ExecutionTime: time.Since(start),
		EndpointName:  endpointName,
	}, nil
}

// attempt runs the network attempts for one Call: breaker reservation, pool
// checkout, the bounded request, classification and the retry loop. Only
// timeouts and connection failures retry; the retry budget is the
// endpoint's MaxRetries on top of the first attempt.
func (c *Client) attempt(ctx context.Context, ep *domain.Endpoint, br *Breaker, operation string, params map[string]any) (map[string]any, error) {
	var lastErr error

	for attempt := 0; attempt <= ep.MaxRetries; attempt++ {
		data, err := c.once(ctx, ep, br, operation, params)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) || attempt == ep.MaxRetries || ctx.Err() != nil {
			break
		}

		delay := c.retryBackoff(attempt)
		c.logger.Info("retrying backend call",
			"endpoint", ep.Name,
			"operation", operation,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		if c.m != nil {
			c.m.RetriesTotal.WithLabelValues(ep.Name).Inc()
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, Classify(ctx.Err())
		}
	}

	return nil, lastErr
}

// once performs a single bounded network attempt and settles the breaker
// and pool bookkeeping for it.
func (c *Client) once(ctx context.Context, ep *domain.Endpoint, br *Breaker, operation string, params map[string]any) (map[string]any, error) {
	done, err := br.Allow()
	if err != nil {
		return nil, err
	}

	attemptStart := time.Now()
	handle, err := c.pool.Checkout(ctx, ep)
	if err != nil {
		cerr := Classify(err)
		done(false)
		c.observe(ep.Name, false, time.Since(attemptStart))
		return nil, cerr
	}

	callCtx, cancel := context.WithTimeout(ctx, ep.Timeout)
	data, err := handle.Do(callCtx, operation, params)
	cancel()

	if err == nil {
		err = c.schemas.Validate(ep.Name, operation, data)
	}
	latency := time.Since(attemptStart)

	if err != nil {
		cerr := Classify(err)
		c.pool.Checkin(handle, false)
		done(false)
		c.observe(ep.Name, false, latency)
		return nil, cerr
	}

	c.pool.Checkin(handle, true)
	done(true)
	c.observe(ep.Name, true, latency)
	return data, nil
}

// retryBackoff computes the delay before retry number attempt+1:
// exponential growth from the base, capped, plus 0-25% jitter.
func (c *Client) retryBackoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.retry.BaseDelay) * math.Pow(c.retry.Multiplier, float64(attempt)))
	if delay > c.retry.MaxDelay {
		delay = c.retry.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// breaker returns the endpoint's breaker, creating it on first use.
func (c *Client) breaker(ep *domain.Endpoint) *Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	br, ok := c.breakers[ep.Name]
	if !ok {
		br = NewBreaker(ep.Name, ep.CircuitThreshold, c.recovery, c.logger, c.m, c.notify)
		c.breakers[ep.Name] = br
	}
	return br
}

// BreakerSnapshot reports one endpoint's breaker state. Endpoints never
// called yet report a closed breaker with zero counts.
func (c *Client) BreakerSnapshot(endpointName string) domain.CircuitBreakerState {
	c.mu.Lock()
	br, ok := c.breakers[endpointName]
	c.mu.Unlock()

	if !ok {
		return domain.CircuitBreakerState{State: domain.BreakerClosed, RecoveryTimeout: c.recovery}
	}
	return br.Snapshot()
}

// Stats returns the rolling counters for one endpoint.
func (c *Client) Stats(endpointName string) (domain.EndpointStats, bool) {
	return c.stats.get(endpointName)
}

// StatsSnapshot returns the rolling counters for every endpoint seen so far.
func (c *Client) StatsSnapshot() []domain.EndpointStats {
	return c.stats.snapshot()
}

// Registry exposes the endpoint table for callers that list or toggle
// endpoints.
func (c *Client) Registry() *Registry { return c.registry }

// InvalidateCache removes cached responses. With operation empty the whole
// endpoint prefix is dropped.
func (c *Client) InvalidateCache(ctx context.Context, endpointName, operation string, params map[string]any) (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	if operation == "" {
		return c.cache.InvalidateEndpoint(ctx, endpointName)
	}
	if err := c.cache.Invalidate(ctx, endpointName, operation, params); err != nil {
		return 0, err
	}
	return 1, nil
}

// Close releases pooled connections and the cache store.
func (c *Client) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

func (c *Client) cacheGet(ctx context.Context, endpoint, operation string, params map[string]any) (map[string]any, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(ctx, endpoint, operation, params)
}

func (c *Client) cacheSet(ctx context.Context, endpoint, operation string, params, data map[string]any, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	c.cache.Set(ctx, endpoint, operation, params, data, ttl)
}

// observe updates the rolling ledger and the per-attempt Prometheus view.
func (c *Client) observe(endpoint string, success bool, latency time.Duration) {
	c.stats.record(endpoint, success, latency)
	if c.m != nil {
		c.m.CallLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
	}
}

// countCall records the final outcome of one Call.
func (c *Client) countCall(endpoint string, err error) {
	if c.m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(domain.ErrorCodeOf(err))
	}
	c.m.CallsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// failure builds the structured result for a failed Call.
func (c *Client) failure(endpointName string, start time.Time, err error) *domain.CallResult {
	return &domain.CallResult{
		Success:       false,
		Err:           err.Error(),
		ErrCode:       domain.ErrorCodeOf(err),
		ExecutionTime: time.Since(start),
		EndpointName:  endpointName,
	}
}
