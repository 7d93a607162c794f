package orchestrate

import (
	"inquest/internal/domain"
)

// Roster is the closed set of registered agents, keyed by kind. Unknown
// kinds and duplicates are rejected at registration, never defaulted at
// dispatch.
type Roster struct {
	agents map[domain.AgentKind]domain.Agent
}

func NewRoster(agents ...domain.Agent) (*Roster, error) {
	r := &Roster{agents: make(map[domain.AgentKind]domain.Agent, len(agents))}
	for _, a := range agents {
		kind := a.Kind()
		if !domain.ValidAgentKind(kind) {
			return nil, domain.NewSubSystemError("orchestrate", "roster.add", domain.ErrUnknownAgentKind, string(kind))
		}
		if _, dup := r.agents[kind]; dup {
			return nil, domain.NewSubSystemError("orchestrate", "roster.add", domain.ErrDuplicateAgent, string(kind))
		}
		r.agents[kind] = a
	}
	return r, nil
}

// Get returns the agent registered for kind.
func (r *Roster) Get(kind domain.AgentKind) (domain.Agent, bool) {
	a, ok := r.agents[kind]
	return a, ok
}

// Kinds lists the registered kinds in roster priority order.
func (r *Roster) Kinds() []domain.AgentKind {
	kinds := make([]domain.AgentKind, 0, len(r.agents))
	for _, k := range domain.KnownAgentKinds() {
		if _, ok := r.agents[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Len reports how many agents are registered.
func (r *Roster) Len() int { return len(r.agents) }
