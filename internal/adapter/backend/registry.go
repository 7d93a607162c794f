package backend

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"inquest/internal/domain"
	"inquest/internal/infra/config"
)

// Registry is the explicit endpoint table built once at startup and passed
// by reference into the client. No process-wide globals: everything that
// needs endpoint lookup holds a *Registry.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*domain.Endpoint
	apiKeys   map[string]string
}

// NewRegistry builds a Registry from the endpoint roster. Duplicate or
// malformed entries are rejected here, at registration time, never at call
// time.
func NewRegistry(endpoints []config.EndpointConfig, apiKeys map[string]string) (*Registry, error) {
	r := &Registry{
		endpoints: make(map[string]*domain.Endpoint, len(endpoints)),
		apiKeys:   make(map[string]string, len(apiKeys)),
	}
	for ref, key := range apiKeys {
		r.apiKeys[ref] = key
	}

	for i, ec := range endpoints {
		ep, err := endpointFromConfig(ec)
		if err != nil {
			return nil, domain.NewSubSystemError("backend", "Registry.New",
				domain.ErrInvalidEndpoint, fmt.Sprintf("endpoints[%d] (%s): %v", i, ec.Name, err))
		}
		if _, exists := r.endpoints[ep.Name]; exists {
			return nil, domain.NewSubSystemError("backend", "Registry.New",
				domain.ErrDuplicateEndpoint, ep.Name)
		}
		if ep.APIKeyRef != "" {
			if _, ok := r.apiKeys[ep.APIKeyRef]; !ok {
				return nil, domain.NewSubSystemError("backend", "Registry.New",
					domain.ErrInvalidEndpoint, fmt.Sprintf("%s: api key ref %q unresolved", ep.Name, ep.APIKeyRef))
			}
		}
		r.endpoints[ep.Name] = ep
	}

	return r, nil
}

func endpointFromConfig(ec config.EndpointConfig) (*domain.Endpoint, error) {
	if ec.Name == "" {
		return nil, fmt.Errorf("name empty")
	}
	if ec.Address == "" {
		return nil, fmt.Errorf("address empty")
	}
	var transport domain.Transport
	switch domain.Transport(ec.Transport) {
	case domain.TransportHTTP, domain.TransportStream:
		transport = domain.Transport(ec.Transport)
	default:
		return nil, fmt.Errorf("transport %q unknown", ec.Transport)
	}
	if ec.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("timeout_seconds %d not positive", ec.TimeoutSeconds)
	}
	if ec.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries %d negative", ec.MaxRetries)
	}
	if ec.CircuitThreshold == 0 {
		return nil, fmt.Errorf("circuit_threshold zero")
	}

	return &domain.Endpoint{
		Name:             ec.Name,
		Address:          ec.Address,
		Transport:        transport,
		Timeout:          time.Duration(ec.TimeoutSeconds) * time.Second,
		MaxRetries:       ec.MaxRetries,
		Priority:         ec.Priority,
		Enabled:          ec.IsEnabled(),
		CircuitThreshold: ec.CircuitThreshold,
		APIKeyRef:        ec.APIKeyRef,
	}, nil
}

// Resolve returns the endpoint by name. It distinguishes unknown from
// disabled so the client can surface the precise failure.
func (r *Registry) Resolve(name string) (*domain.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[name]
	if !ok {
		return nil, domain.NewSubSystemError("backend", "Registry.Resolve", domain.ErrUnknownEndpoint, name)
	}
	if !ep.Enabled {
		return nil, domain.NewSubSystemError("backend", "Registry.Resolve", domain.ErrEndpointDisabled, name)
	}
	cp := *ep
	return &cp, nil
}

// SetEnabled flips the only mutable endpoint field. Unknown names error.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.endpoints[name]
	if !ok {
		return domain.NewSubSystemError("backend", "Registry.SetEnabled", domain.ErrUnknownEndpoint, name)
	}
	ep.Enabled = enabled
	return nil
}

// List returns every registered endpoint sorted by descending priority,
// then name. Entries are copies.
func (r *Registry) List() []domain.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, *ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// APIKey resolves an api_key_ref to its secret. Empty ref resolves to "".
func (r *Registry) APIKey(ref string) string {
	if ref == "" {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.apiKeys[ref]
}
