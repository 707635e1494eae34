package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/pkg/agents"
	"github.com/ensembleworks/ensemble/pkg/models"
)

func seedRegistry(t *testing.T, defs ...models.Agent) *agents.Registry {
	t.Helper()
	registry := agents.NewRegistry(agents.NewMemoryStore())
	for _, def := range defs {
		_, err := registry.Create(context.Background(), def)
		require.NoError(t, err)
	}
	return registry
}

func defaultAgent() models.Agent {
	return models.Agent{
		Name:     "technical_support",
		Role:     "generalist",
		Keywords: []string{"help", "issue"},
	}
}

func TestRouteEmptyQuery(t *testing.T) {
	r := New(seedRegistry(t, defaultAgent()), Config{})
	_, err := r.Route(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindInvalidInput, models.KindOf(err))
}

func TestRouteNoActiveAgents(t *testing.T) {
	r := New(seedRegistry(t), Config{})
	_, err := r.Route(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindNoAgentsAvailable, models.KindOf(err))
}

func TestRouteTechnicalQuery(t *testing.T) {
	registry := seedRegistry(t,
		models.Agent{
			Name:                "Technical Integration Specialist",
			Keywords:            []string{"webhook", "signature", "endpoint"},
			SpecializationScore: 0.9,
		},
		defaultAgent(),
	)
	r := New(registry, Config{})

	selections, err := r.Route(context.Background(), "Webhook returns 403 after signature check")

	require.NoError(t, err)
	require.NotEmpty(t, selections)
	assert.Equal(t, "Technical Integration Specialist", selections[0].Agent.Name)
	// webhook (1.0) + signature (1.0) + endpoint via webhook category (0.5)
	assert.GreaterOrEqual(t, selections[0].Confidence, 0.7)
	assert.LessOrEqual(t, selections[0].Confidence, 1.0)
}

func TestRouteFallbackToDefault(t *testing.T) {
	registry := seedRegistry(t,
		models.Agent{Name: "Billing Pro", Keywords: []string{"billing", "invoice"}},
		defaultAgent(),
	)
	r := New(registry, Config{})

	selections, err := r.Route(context.Background(), "tell me a joke")

	require.NoError(t, err)
	require.Len(t, selections, 1)
	assert.Equal(t, "technical_support", selections[0].Agent.Name)
	assert.Equal(t, 0.5, selections[0].Confidence)
}

func TestRouteNoDefaultConfigured(t *testing.T) {
	registry := seedRegistry(t,
		models.Agent{Name: "Billing Pro", Keywords: []string{"billing"}},
	)
	r := New(registry, Config{})

	_, err := r.Route(context.Background(), "tell me a joke")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindNoAgentsAvailable, models.KindOf(err))
}

func TestRouteCategoryMatchScoresHalf(t *testing.T) {
	registry := seedRegistry(t,
		models.Agent{Name: "Billing Pro", Keywords: []string{"billing"}},
		defaultAgent(),
	)
	r := New(registry, Config{})

	// "refund" triggers the billing category: 0.5 alone, below the keep
	// threshold, so the default agent answers.
	selections, err := r.Route(context.Background(), "I want a refund")
	require.NoError(t, err)
	assert.Equal(t, "technical_support", selections[0].Agent.Name)

	// A direct keyword plus the category signal clears the threshold.
	selections, err = r.Route(context.Background(), "billing refund question")
	require.NoError(t, err)
	assert.Equal(t, "Billing Pro", selections[0].Agent.Name)
}

func TestRouteDeterministic(t *testing.T) {
	registry := seedRegistry(t,
		models.Agent{Name: "A", Keywords: []string{"database", "migration"}, SpecializationScore: 0.5},
		models.Agent{Name: "B", Keywords: []string{"database", "schema"}, SpecializationScore: 0.5},
		models.Agent{Name: "C", Keywords: []string{"deployment"}, SpecializationScore: 0.5},
		defaultAgent(),
	)
	r := New(registry, Config{})

	first, err := r.Route(context.Background(), "database migration broke the schema")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := r.Route(context.Background(), "database migration broke the schema")
		require.NoError(t, err)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].Agent.ID, again[j].Agent.ID)
			assert.Equal(t, first[j].Confidence, again[j].Confidence)
		}
	}
}

func TestRouteCollisionBrokenBySpecialization(t *testing.T) {
	registry := seedRegistry(t,
		models.Agent{Name: "Junior", Keywords: []string{"security"}, SpecializationScore: 0.3},
		models.Agent{Name: "Senior", Keywords: []string{"security"}, SpecializationScore: 0.9},
	)
	r := New(registry, Config{})

	selections, err := r.Route(context.Background(), "security review please")
	require.NoError(t, err)
	require.Len(t, selections, 2)
	assert.Equal(t, "Senior", selections[0].Agent.Name)
}

func TestRouteTopKTruncation(t *testing.T) {
	registry := seedRegistry(t,
		models.Agent{Name: "A", Keywords: []string{"deployment"}, SpecializationScore: 0.9},
		models.Agent{Name: "B", Keywords: []string{"deployment"}, SpecializationScore: 0.8},
		models.Agent{Name: "C", Keywords: []string{"deployment"}, SpecializationScore: 0.7},
		models.Agent{Name: "D", Keywords: []string{"deployment"}, SpecializationScore: 0.6},
	)
	r := New(registry, Config{})

	selections, err := r.Route(context.Background(), "deployment failed")
	require.NoError(t, err)
	assert.Len(t, selections, defaultTopK)
}

func TestRouteOrchestratorPrepended(t *testing.T) {
	registry := seedRegistry(t,
		models.Agent{Name: "Conductor", Keywords: []string{"deployment"}},
		models.Agent{Name: "Deployer", Keywords: []string{"deployment", "rollback"}},
	)
	r := New(registry, Config{OrchestratorName: "Conductor"})

	selections, err := r.Route(context.Background(), "deployment rollback needed")
	require.NoError(t, err)

	require.NotEmpty(t, selections)
	assert.Equal(t, "Conductor", selections[0].Agent.Name)
	assert.Equal(t, 1.0, selections[0].Confidence)
	// The orchestrator matched on keywords too; it must not appear twice.
	for _, sel := range selections[1:] {
		assert.NotEqual(t, "Conductor", sel.Agent.Name)
	}
}

func TestRoutePhraseKeyword(t *testing.T) {
	registry := seedRegistry(t,
		models.Agent{Name: "Rate Pro", Keywords: []string{"rate limit", "throttling"}},
		defaultAgent(),
	)
	r := New(registry, Config{})

	selections, err := r.Route(context.Background(), "hitting the rate limit on the API")
	require.NoError(t, err)
	require.NotEmpty(t, selections)
	assert.Equal(t, "Rate Pro", selections[0].Agent.Name,
		"multi-word keywords match as phrases")
	assert.InDelta(t, 1.0/3, selections[0].Confidence, 1e-9)
}
