package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeAgentsUserWins(t *testing.T) {
	builtin := map[string]AgentConfig{
		"technical_support": {Role: "Builtin Role", Domain: "technical"},
		"billing_support":   {Role: "Billing", Domain: "billing"},
	}
	user := map[string]AgentConfig{
		"technical_support": {Role: "Custom Role", Domain: "technical"},
		"legal_advisor":     {Role: "Counsel", Domain: "legal"},
	}

	merged := mergeAgents(builtin, user)
	require.Len(t, merged, 3)
	assert.Equal(t, "Custom Role", merged["technical_support"].Role)
	assert.Equal(t, "Billing", merged["billing_support"].Role)
	assert.Equal(t, "Counsel", merged["legal_advisor"].Role)

	// Merged entries are copies, not aliases into the input maps.
	merged["billing_support"].Role = "mutated"
	assert.Equal(t, "Billing", builtin["billing_support"].Role)
}

func TestMergeSystemFieldByField(t *testing.T) {
	user := &SystemConfig{
		Server:      ServerConfig{Port: 9999},
		Coordinator: CoordinatorConfig{AgentTimeout: 30 * time.Second},
	}

	merged, err := mergeSystem(user)
	require.NoError(t, err)

	assert.Equal(t, 9999, merged.Server.Port)
	assert.Equal(t, "0.0.0.0", merged.Server.Host, "unset host keeps default")
	assert.Equal(t, 30*time.Second, merged.Coordinator.AgentTimeout)
	assert.Equal(t, 120*time.Second, merged.Coordinator.ExecutionTimeout)
}

func TestMergeSystemNilUsesDefaults(t *testing.T) {
	merged, err := mergeSystem(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemConfig(), merged)
}

func TestMergeDefaults(t *testing.T) {
	custom := 0.2
	merged, err := mergeDefaults(&Defaults{Temperature: &custom})
	require.NoError(t, err)
	assert.Equal(t, "balanced", merged.PreferredTier)
	assert.InDelta(t, 0.2, *merged.Temperature, 1e-9)
}
