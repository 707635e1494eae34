package config

import "dario.cat/mergo"

// mergeAgents merges built-in and user-defined agent configurations.
// A user-defined agent replaces a built-in agent with the same name.
func mergeAgents(builtin map[string]AgentConfig, user map[string]AgentConfig) map[string]*AgentConfig {
	result := make(map[string]*AgentConfig)
	for name, agent := range builtin {
		agentCopy := agent
		result[name] = &agentCopy
	}
	for name, agent := range user {
		agentCopy := agent
		result[name] = &agentCopy
	}
	return result
}

// mergeCapabilities merges built-in and user-defined capability tiers.
// A user-defined tier replaces the built-in tier with the same name.
func mergeCapabilities(builtin map[string]CapabilityConfig, user map[string]CapabilityConfig) map[string]*CapabilityConfig {
	result := make(map[string]*CapabilityConfig)
	for tier, cap := range builtin {
		capCopy := cap
		result[tier] = &capCopy
	}
	for tier, cap := range user {
		capCopy := cap
		result[tier] = &capCopy
	}
	return result
}

// mergeSystem fills zero-valued fields of the user system config from the
// defaults. The user config wins wherever it set a value.
func mergeSystem(user *SystemConfig) (*SystemConfig, error) {
	merged := DefaultSystemConfig()
	if user == nil {
		return merged, nil
	}
	// mergo overwrites destination fields with non-zero source fields.
	if err := mergo.Merge(merged, user, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}

// mergeDefaults fills omitted default fields from the built-in defaults.
func mergeDefaults(user *Defaults) (*Defaults, error) {
	merged := DefaultDefaults()
	if user == nil {
		return merged, nil
	}
	if err := mergo.Merge(merged, user, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}
