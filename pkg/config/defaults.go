package config

import "time"

// Defaults contains system-wide default values applied to components that
// don't specify their own.
type Defaults struct {
	// PreferredTier default for agents that omit one.
	PreferredTier string `yaml:"preferred_tier,omitempty"`

	// Temperature default for capabilities that omit one.
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens default for capabilities that omit one.
	MaxTokens *int `yaml:"max_tokens,omitempty"`
}

// DefaultSystemConfig returns the built-in system settings. User YAML
// overrides these field by field via mergo.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Knowledge: KnowledgeConfig{
			ScrapeCacheTTL: 10 * time.Minute,
		},
		Coordinator: CoordinatorConfig{
			ExecutionTimeout:  120 * time.Second,
			AgentTimeout:      60 * time.Second,
			MaxTokens:         4096,
			MaxParallelAgents: 3,
			CancelTimeout:     2 * time.Second,
		},
		Router: RouterConfig{
			DefaultAgent: "technical_support",
			TopK:         3,
		},
		Realtime: RealtimeConfig{
			Retention: 10 * time.Minute,
		},
		Retention: RetentionConfig{
			SessionTTL:      24 * time.Hour,
			CleanupInterval: 30 * time.Minute,
		},
	}
}

// DefaultDefaults returns the built-in component defaults.
func DefaultDefaults() *Defaults {
	temp := 0.7
	maxTokens := 4096
	return &Defaults{
		PreferredTier: "balanced",
		Temperature:   &temp,
		MaxTokens:     &maxTokens,
	}
}

// applyAgentDefaults fills omitted agent fields from the defaults.
func applyAgentDefaults(agents map[string]*AgentConfig, defaults *Defaults) {
	for _, agent := range agents {
		if agent.PreferredTier == "" {
			agent.PreferredTier = defaults.PreferredTier
		}
	}
}

// applyCapabilityDefaults fills omitted capability fields from the defaults.
func applyCapabilityDefaults(capabilities map[string]*CapabilityConfig, defaults *Defaults) {
	for _, capability := range capabilities {
		if capability.Temperature == 0 && defaults.Temperature != nil {
			capability.Temperature = *defaults.Temperature
		}
		if capability.MaxTokens == 0 && defaults.MaxTokens != nil {
			capability.MaxTokens = *defaults.MaxTokens
		}
	}
}
