package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/domain"
	"inquest/internal/infra/config"
)

func validEndpoints() []config.EndpointConfig {
	return []config.EndpointConfig{
		{Name: "network-intel", Address: "http://10.0.0.1:9000", Transport: "http", TimeoutSeconds: 30, MaxRetries: 2, Priority: 10, CircuitThreshold: 5},
		{Name: "device-check", Address: "ws://10.0.0.2:9001", Transport: "stream", TimeoutSeconds: 15, Priority: 5, CircuitThreshold: 3},
	}
}

func TestRegistryResolve(t *testing.T) {
	reg, err := NewRegistry(validEndpoints(), nil)
	require.NoError(t, err)

	ep, err := reg.Resolve("network-intel")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:9000", ep.Address)
	assert.Equal(t, domain.TransportHTTP, ep.Transport)
	assert.True(t, ep.Enabled)
}

func TestRegistryResolveUnknown(t *testing.T) {
	reg, err := NewRegistry(validEndpoints(), nil)
	require.NoError(t, err)

	_, err = reg.Resolve("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownEndpoint)
}

func TestRegistryResolveDisabled(t *testing.T) {
	disabled := false
	eps := validEndpoints()
	eps[0].Enabled = &disabled

	reg, err := NewRegistry(eps, nil)
	require.NoError(t, err)

	_, err = reg.Resolve("network-intel")
	assert.ErrorIs(t, err, domain.ErrEndpointDisabled)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	eps := validEndpoints()
	eps = append(eps, eps[0])

	_, err := NewRegistry(eps, nil)
	assert.ErrorIs(t, err, domain.ErrDuplicateEndpoint)
}

func TestRegistryRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.EndpointConfig)
	}{
		{"empty name", func(e *config.EndpointConfig) { e.Name = "" }},
		{"empty address", func(e *config.EndpointConfig) { e.Address = "" }},
		{"unknown transport", func(e *config.EndpointConfig) { e.Transport = "carrier-pigeon" }},
		{"zero timeout", func(e *config.EndpointConfig) { e.TimeoutSeconds = 0 }},
		{"negative retries", func(e *config.EndpointConfig) { e.MaxRetries = -1 }},
		{"zero threshold", func(e *config.EndpointConfig) { e.CircuitThreshold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eps := validEndpoints()[:1]
			tt.mutate(&eps[0])

			_, err := NewRegistry(eps, nil)
			assert.ErrorIs(t, err, domain.ErrInvalidEndpoint)
		})
	}
}

func TestRegistryRejectsUnresolvedKeyRef(t *testing.T) {
	eps := validEndpoints()[:1]
	eps[0].APIKeyRef = "network_intel_key"

	_, err := NewRegistry(eps, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidEndpoint)

	_, err = NewRegistry(eps, map[string]string{"network_intel_key": "s3cret"})
	assert.NoError(t, err)
}

func TestRegistrySetEnabled(t *testing.T) {
	reg, err := NewRegistry(validEndpoints(), nil)
	require.NoError(t, err)

	require.NoError(t, reg.SetEnabled("network-intel", false))
	_, err = reg.Resolve("network-intel")
	assert.ErrorIs(t, err, domain.ErrEndpointDisabled)

	require.NoError(t, reg.SetEnabled("network-intel", true))
	_, err = reg.Resolve("network-intel")
	assert.NoError(t, err)

	err = reg.SetEnabled("nope", true)
	assert.ErrorIs(t, err, domain.ErrUnknownEndpoint)
}

func TestRegistryListOrdering(t *testing.T) {
	eps := []config.EndpointConfig{
		{Name: "bravo", Address: "http://b", Transport: "http", TimeoutSeconds: 5, CircuitThreshold: 1, Priority: 1},
		{Name: "alpha", Address: "http://a", Transport: "http", TimeoutSeconds: 5, CircuitThreshold: 1, Priority: 1},
		{Name: "zulu", Address: "http://z", Transport: "http", TimeoutSeconds: 5, CircuitThreshold: 1, Priority: 9},
	}
	reg, err := NewRegistry(eps, nil)
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, "zulu", list[0].Name)
	assert.Equal(t, "alpha", list[1].Name)
	assert.Equal(t, "bravo", list[2].Name)
}

func TestRegistryListIncludesDisabled(t *testing.T) {
	reg, err := NewRegistry(validEndpoints(), nil)
	require.NoError(t, err)
	require.NoError(t, reg.SetEnabled("device-check", false))

	list := reg.List()
	assert.Len(t, list, 2)
	for _, ep := range list {
		if ep.Name == "device-check" {
			assert.False(t, ep.Enabled)
		}
	}
}

func TestRegistryAPIKey(t *testing.T) {
	reg, err := NewRegistry(nil, map[string]string{"k": "v"})
	require.NoError(t, err)

	assert.Equal(t, "v", reg.APIKey("k"))
	assert.Equal(t, "", reg.APIKey(""))
	assert.Equal(t, "", reg.APIKey("missing"))
}

func TestRegistryResolveReturnsCopy(t *testing.T) {
	reg, err := NewRegistry(validEndpoints(), nil)
	require.NoError(t, err)

	ep, err := reg.Resolve("network-intel")
	require.NoError(t, err)
	ep.Enabled = false

	again, err := reg.Resolve("network-intel")
	require.NoError(t, err)
	assert.True(t, again.Enabled, "mutating a resolved copy must not touch the registry")
}
