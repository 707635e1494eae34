package config

import (
	"fmt"
	"sort"
)

// AgentRegistry holds the merged agent configurations, immutable after
// Initialize.
type AgentRegistry struct {
	agents map[string]*AgentConfig
}

// NewAgentRegistry creates a registry from the merged agent map.
func NewAgentRegistry(agents map[string]*AgentConfig) *AgentRegistry {
	return &AgentRegistry{agents: agents}
}

// Get retrieves an agent configuration by name.
func (r *AgentRegistry) Get(name string) (*AgentConfig, error) {
	agent, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return agent, nil
}

// Len returns the number of configured agents.
func (r *AgentRegistry) Len() int { return len(r.agents) }

// Names returns all agent names, sorted.
func (r *AgentRegistry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CapabilityRegistry holds the merged capability tiers, immutable after
// Initialize.
type CapabilityRegistry struct {
	capabilities map[string]*CapabilityConfig
}

// NewCapabilityRegistry creates a registry from the merged capability map.
func NewCapabilityRegistry(capabilities map[string]*CapabilityConfig) *CapabilityRegistry {
	return &CapabilityRegistry{capabilities: capabilities}
}

// Get retrieves a capability configuration by tier name.
func (r *CapabilityRegistry) Get(tier string) (*CapabilityConfig, error) {
	capability, ok := r.capabilities[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCapabilityNotFound, tier)
	}
	return capability, nil
}

// Len returns the number of configured capability tiers.
func (r *CapabilityRegistry) Len() int { return len(r.capabilities) }

// Tiers returns all tier names, sorted.
func (r *CapabilityRegistry) Tiers() []string {
	tiers := make([]string, 0, len(r.capabilities))
	for tier := range r.capabilities {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	return tiers
}
