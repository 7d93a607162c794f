package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Client.Call", ErrUnknownEndpoint, "endpoint 'geoip'")
	want := "Client.Call: endpoint 'geoip': endpoint not registered"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Breaker.Allow", ErrCircuitOpen, "")
	want := "Breaker.Allow: circuit breaker open"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Pool.Checkout", ErrConnection, "dial tcp refused")
	if !errors.Is(err, ErrConnection) {
		t.Error("errors.Is should match ErrConnection")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := NewSubSystemError("backend", "Client.Call", ErrTimeout, "threat-intel")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.SubSystem != "backend" {
		t.Errorf("SubSystem = %q, want %q", de.SubSystem, "backend")
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrConnection))
	assert.True(t, IsRetryable(fmt.Errorf("call: %w", ErrTimeout)))
	assert.False(t, IsRetryable(ErrCircuitOpen))
	assert.False(t, IsRetryable(ErrProtocol))
	assert.False(t, IsRetryable(ErrUnknownEndpoint))
	assert.False(t, IsRetryable(ErrEndpointDisabled))
	assert.False(t, IsRetryable(nil))
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeCircuitOpen, ErrorCodeOf(ErrCircuitOpen))
	assert.Equal(t, CodeTimeout, ErrorCodeOf(ErrTimeout))
	assert.Equal(t, CodeCacheUnavailable, ErrorCodeOf(ErrCacheUnavailable))
	assert.Equal(t, CodeOrchestration, ErrorCodeOf(ErrOrchestration))
}

func TestErrorCodeOf_DomainError(t *testing.T) {
	err := NewDomainError("Registry.Register", ErrDuplicateEndpoint, "geoip")
	assert.Equal(t, CodeDuplicateEndpoint, ErrorCodeOf(err))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrAgentExecution)
	assert.Equal(t, CodeAgentExecution, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
}

func TestHardEvidence(t *testing.T) {
	assert.False(t, CaseFacts{}.HardEvidence())
	assert.True(t, CaseFacts{ConfirmedFraud: true}.HardEvidence())
	assert.True(t, CaseFacts{ConfirmedChargeback: true}.HardEvidence())
	assert.True(t, CaseFacts{ManualOutcome: "fraud"}.HardEvidence())
	assert.False(t, CaseFacts{ManualOutcome: "legit"}.HardEvidence())
}

func TestValidAgentKind(t *testing.T) {
	for _, k := range KnownAgentKinds() {
		assert.True(t, ValidAgentKind(k), "kind %s", k)
	}
	assert.False(t, ValidAgentKind(AgentKind("psychic")))
}
