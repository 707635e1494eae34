package config

import (
	"errors"
	"fmt"
)

// validTiers are the capability tier names agents may prefer.
var validTiers = map[string]bool{
	"fast":      true,
	"balanced":  true,
	"powerful":  true,
	"reasoning": true,
	"creative":  true,
	"local":     true,
}

// validate checks the whole configuration after merging. All problems are
// collected so the operator sees everything wrong in one run.
func validate(cfg *Config) error {
	var errs []error

	for _, name := range cfg.AgentRegistry.Names() {
		agent, _ := cfg.AgentRegistry.Get(name)
		errs = append(errs, validateAgent(name, agent)...)
	}
	for _, tier := range cfg.CapabilityRegistry.Tiers() {
		capability, _ := cfg.CapabilityRegistry.Get(tier)
		errs = append(errs, validateCapability(tier, capability)...)
	}
	errs = append(errs, validateSystem(cfg)...)

	return errors.Join(errs...)
}

func validateAgent(name string, agent *AgentConfig) []error {
	var errs []error
	if agent.Role == "" {
		errs = append(errs, NewValidationError("agent", name, "role", ErrMissingRequiredField))
	}
	if agent.Goal == "" {
		errs = append(errs, NewValidationError("agent", name, "goal", ErrMissingRequiredField))
	}
	if len(agent.Keywords) == 0 {
		errs = append(errs, NewValidationError("agent", name, "keywords", ErrMissingRequiredField))
	}
	if agent.PreferredTier != "" && !validTiers[agent.PreferredTier] {
		errs = append(errs, NewValidationError("agent", name, "preferred_tier",
			fmt.Errorf("%w: %q", ErrInvalidValue, agent.PreferredTier)))
	}
	if agent.SpecializationScore < 0 || agent.SpecializationScore > 1 {
		errs = append(errs, NewValidationError("agent", name, "specialization_score",
			fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue)))
	}
	if agent.CollaborationScore < 0 || agent.CollaborationScore > 1 {
		errs = append(errs, NewValidationError("agent", name, "collaboration_score",
			fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue)))
	}
	return errs
}

func validateCapability(tier string, capability *CapabilityConfig) []error {
	var errs []error
	if !validTiers[tier] {
		errs = append(errs, NewValidationError("capability", tier, "",
			fmt.Errorf("%w: unknown tier", ErrInvalidValue)))
	}
	if capability.ModelID == "" {
		errs = append(errs, NewValidationError("capability", tier, "model_id", ErrMissingRequiredField))
	}
	if capability.CostPerToken < 0 {
		errs = append(errs, NewValidationError("capability", tier, "cost_per_token",
			fmt.Errorf("%w: must be non-negative", ErrInvalidValue)))
	}
	if capability.MaxTokens < 0 {
		errs = append(errs, NewValidationError("capability", tier, "max_tokens",
			fmt.Errorf("%w: must be non-negative", ErrInvalidValue)))
	}
	return errs
}

func validateSystem(cfg *Config) []error {
	var errs []error
	sys := cfg.System

	if sys.Server.Port < 1 || sys.Server.Port > 65535 {
		errs = append(errs, NewValidationError("server", "server", "port",
			fmt.Errorf("%w: %d", ErrInvalidValue, sys.Server.Port)))
	}

	// Router references must resolve to configured agents.
	if name := sys.Router.DefaultAgent; name != "" {
		if _, err := cfg.AgentRegistry.Get(name); err != nil {
			errs = append(errs, NewValidationError("router", "router", "default_agent",
				fmt.Errorf("%w: %s", ErrInvalidReference, name)))
		}
	}
	if name := sys.Router.OrchestratorAgent; name != "" {
		if _, err := cfg.AgentRegistry.Get(name); err != nil {
			errs = append(errs, NewValidationError("router", "router", "orchestrator_agent",
				fmt.Errorf("%w: %s", ErrInvalidReference, name)))
		}
	}

	if sys.Coordinator.ExecutionTimeout <= 0 {
		errs = append(errs, NewValidationError("coordinator", "coordinator", "execution_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	if sys.Coordinator.AgentTimeout <= 0 {
		errs = append(errs, NewValidationError("coordinator", "coordinator", "agent_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	if sys.Coordinator.AgentTimeout > sys.Coordinator.ExecutionTimeout {
		errs = append(errs, NewValidationError("coordinator", "coordinator", "agent_timeout",
			fmt.Errorf("%w: must not exceed execution_timeout", ErrInvalidValue)))
	}
	if sys.Coordinator.MaxParallelAgents < 1 {
		errs = append(errs, NewValidationError("coordinator", "coordinator", "max_parallel_agents",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue)))
	}

	if qd := sys.Knowledge.Qdrant; qd != nil && qd.Host == "" {
		errs = append(errs, NewValidationError("knowledge", "qdrant", "host", ErrMissingRequiredField))
	}
	return errs
}
