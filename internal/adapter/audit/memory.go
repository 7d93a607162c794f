package audit

import (
	"context"
	"sync"

	"inquest/internal/domain"
)

// MemoryStore keeps the investigation trail in process memory. One-shot
// runs use it to report the handoff trail without touching disk.
type MemoryStore struct {
	mu       sync.Mutex
	handoffs []domain.AgentHandoff
	results  map[string]domain.ConsolidatedResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]domain.ConsolidatedResult)}
}

func (s *MemoryStore) Append(_ context.Context, h domain.AgentHandoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handoffs = append(s.handoffs, h)
	return nil
}

func (s *MemoryStore) List(_ context.Context, investigationID string) ([]domain.AgentHandoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AgentHandoff
	for _, h := range s.handoffs {
		if h.ContextRef == investigationID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveResult(_ context.Context, res domain.ConsolidatedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.InvestigationID] = res
	return nil
}

func (s *MemoryStore) GetResult(_ context.Context, investigationID string) (domain.ConsolidatedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[investigationID]
	if !ok {
		return domain.ConsolidatedResult{}, domain.ErrInvestigationNotFound
	}
	return res, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ domain.InvestigationStore = (*MemoryStore)(nil)
