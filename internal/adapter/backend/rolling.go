package backend

import (
	"sort"
	"sync"
	"time"

	"inquest/internal/domain"
)

// statsLedger keeps the per-endpoint rolling call counters the client
// updates on every outcome. The mean latency is incremental, so the ledger
// never holds individual samples.
type statsLedger struct {
	mu    sync.Mutex
	stats map[string]*domain.EndpointStats
}

func newStatsLedger() *statsLedger {
	return &statsLedger{stats: make(map[string]*domain.EndpointStats)}
}

func (l *statsLedger) record(endpoint string, success bool, latency time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stats[endpoint]
	if !ok {
		s = &domain.EndpointStats{EndpointName: endpoint}
		l.stats[endpoint] = s
	}

	s.Requests++
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
	s.MeanLatency += (latency - s.MeanLatency) / time.Duration(s.Requests)
	s.LastUpdatedAt = time.Now()
}

// get returns a copy of one endpoint's counters.
func (l *statsLedger) get(endpoint string) (domain.EndpointStats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stats[endpoint]
	if !ok {
		return domain.EndpointStats{}, false
	}
	return *s, true
}

// snapshot returns copies of every endpoint's counters, sorted by name.
func (l *statsLedger) snapshot() []domain.EndpointStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.EndpointStats, 0, len(l.stats))
	for _, s := range l.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndpointName < out[j].EndpointName })
	return out
}
