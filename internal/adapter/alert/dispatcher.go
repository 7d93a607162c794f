// Package alert delivers operator notifications (breaker trips, fallback
// investigations) to configured sinks. Delivery is best-effort and fully
// decoupled from the paths that raise alerts.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"inquest/internal/domain"
	"inquest/internal/usecase/orchestrate"
)

// sendTimeout bounds one delivery attempt per sink.
const sendTimeout = 10 * time.Second

// Dispatcher fans alerts out to its sinks from a single worker goroutine.
// Raise never blocks: when the queue is full the alert is dropped with a
// warning.
type Dispatcher struct {
	sinks  []domain.Notifier
	logger *slog.Logger
	queue  chan domain.Alert
	done   chan struct{}
}

func NewDispatcher(logger *slog.Logger, sinks ...domain.Notifier) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		logger: logger,
		queue:  make(chan domain.Alert, 64),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery worker. It returns immediately; the worker
// runs until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.loop(ctx)
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-d.queue:
			d.deliver(alert)
		}
	}
}

// Wait blocks until the delivery worker has exited.
func (d *Dispatcher) Wait() {
	<-d.done
}

// Raise enqueues an alert for delivery.
func (d *Dispatcher) Raise(_ context.Context, alert domain.Alert) {
	select {
	case d.queue <- alert:
	default:
		d.logger.Warn("alert queue full, dropping alert",
			"kind", string(alert.Kind),
			"subject", alert.Subject)
	}
}

func (d *Dispatcher) deliver(alert domain.Alert) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := sink.Notify(ctx, alert)
		cancel()
		if err != nil {
			d.logger.Warn("alert delivery failed",
				"sink", sink.Name(),
				"kind", string(alert.Kind),
				"error", err)
			continue
		}
		d.logger.Debug("alert delivered",
			"sink", sink.Name(),
			"kind", string(alert.Kind))
	}
}

// formatAlert renders one alert as a single chat line. Fields appear in
// sorted order so repeated alerts render identically.
func formatAlert(a domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", a.Kind, a.Subject)
	if a.Detail != "" {
		fmt.Fprintf(&b, ": %s", a.Detail)
	}
	if len(a.Fields) > 0 {
		keys := make([]string, 0, len(a.Fields))
		for k := range a.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + a.Fields[k]
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(pairs, " "))
	}
	return b.String()
}

var _ orchestrate.Alerter = (*Dispatcher)(nil)
