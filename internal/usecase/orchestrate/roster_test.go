package orchestrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/domain"
)

func TestNewRosterRejectsUnknownKind(t *testing.T) {
	_, err := NewRoster(&fakeAgent{kind: domain.AgentKind("oracle")})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownAgentKind)
	assert.Contains(t, err.Error(), "oracle")
}

func TestNewRosterRejectsDuplicateKind(t *testing.T) {
	_, err := NewRoster(
		&fakeAgent{kind: domain.AgentNetwork},
		&fakeAgent{kind: domain.AgentNetwork},
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateAgent)
}

func TestRosterKindsFollowPriorityOrder(t *testing.T) {
	roster, err := NewRoster(
		&fakeAgent{kind: domain.AgentChain},
		&fakeAgent{kind: domain.AgentNetwork},
		&fakeAgent{kind: domain.AgentLogs},
	)
	require.NoError(t, err)

	assert.Equal(t, []domain.AgentKind{domain.AgentNetwork, domain.AgentLogs, domain.AgentChain}, roster.Kinds())
	assert.Equal(t, 3, roster.Len())
}

func TestRosterGet(t *testing.T) {
	device := &fakeAgent{kind: domain.AgentDevice}
	roster, err := NewRoster(device)
	require.NoError(t, err)

	got, ok := roster.Get(domain.AgentDevice)
	require.True(t, ok)
	assert.Same(t, device, got.(*fakeAgent))

	_, ok = roster.Get(domain.AgentChain)
	assert.False(t, ok)
}
