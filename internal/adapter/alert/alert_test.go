package alert

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/domain"
)

type stubNotifier struct {
	name string
	err  error

	mu       sync.Mutex
	received []domain.Alert
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, alert)
	return s.err
}

func (s *stubNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func breakerAlert() domain.Alert {
	return domain.Alert{
		Kind:      domain.AlertBreakerOpened,
		Subject:   "agent breaker opened",
		Detail:    "agent network tripped its circuit breaker",
		Fields:    map[string]string{"agent": "network"},
		Timestamp: time.Now().UTC(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatcherFansOutToAllSinks(t *testing.T) {
	first := &stubNotifier{name: "first"}
	second := &stubNotifier{name: "second"}
	d := NewDispatcher(slog.Default(), first, second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Raise(context.Background(), breakerAlert())

	waitFor(t, func() bool { return first.count() == 1 && second.count() == 1 })
	assert.Equal(t, domain.AlertBreakerOpened, first.received[0].Kind)
}

func TestDispatcherContinuesPastFailingSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	broken := &stubNotifier{name: "broken", err: errors.New("webhook gone")}
	healthy := &stubNotifier{name: "healthy"}
	d := NewDispatcher(logger, broken, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Raise(context.Background(), breakerAlert())

	waitFor(t, func() bool { return healthy.count() == 1 })
	assert.Equal(t, 1, broken.count())
	assert.Contains(t, buf.String(), "alert delivery failed")
	assert.Contains(t, buf.String(), "broken")
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	// Worker never started, so the queue fills and overflow is dropped.
	d := NewDispatcher(logger, &stubNotifier{name: "idle"})
	for i := 0; i < 100; i++ {
		d.Raise(context.Background(), breakerAlert())
	}

	assert.Contains(t, buf.String(), "alert queue full")
}

func TestDispatcherStopsWithContext(t *testing.T) {
	d := NewDispatcher(slog.Default(), &stubNotifier{name: "sink"})

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after context cancellation")
	}
}

func TestFormatAlert(t *testing.T) {
	alert := domain.Alert{
		Kind:    domain.AlertInvestigationFellBack,
		Subject: "investigation fell back",
		Detail:  "orchestration panic",
		Fields: map[string]string{
			"investigation_id": "inv-1",
			"agent":            "chain",
		},
	}

	got := formatAlert(alert)
	assert.Equal(t,
		"[investigation_fell_back] investigation fell back: orchestration panic (agent=chain investigation_id=inv-1)",
		got)

	// Fields render in sorted order, so the line is stable across calls.
	assert.Equal(t, got, formatAlert(alert))
}

func TestFormatAlertMinimal(t *testing.T) {
	got := formatAlert(domain.Alert{
		Kind:    domain.AlertBreakerOpened,
		Subject: "agent breaker opened",
	})
	assert.Equal(t, "[breaker_opened] agent breaker opened", got)
}

func TestNewSlackNotifierValidates(t *testing.T) {
	_, err := NewSlackNotifier("", "#alerts", slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot token")

	_, err = NewSlackNotifier("xoxb-token", "", slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel")

	n, err := NewSlackNotifier("xoxb-token", "#alerts", slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "slack", n.Name())
}

func TestNewDiscordNotifierValidates(t *testing.T) {
	_, err := NewDiscordNotifier("", "123", slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")

	_, err = NewDiscordNotifier("bot-token", "", slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel id")

	n, err := NewDiscordNotifier("bot-token", "123", slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "discord", n.Name())
}
