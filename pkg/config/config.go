package config

// Config is the umbrella configuration object returned by Initialize and
// used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// System-wide infrastructure settings
	System *SystemConfig

	// Component defaults
	Defaults *Defaults

	// Component registries
	AgentRegistry      *AgentRegistry
	CapabilityRegistry *CapabilityRegistry
}

// Stats contains statistics about loaded configuration
type Stats struct {
	Agents       int
	Capabilities int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.AgentRegistry != nil {
		s.Agents = c.AgentRegistry.Len()
	}
	if c.CapabilityRegistry != nil {
		s.Capabilities = c.CapabilityRegistry.Len()
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetAgent retrieves an agent configuration by name.
func (c *Config) GetAgent(name string) (*AgentConfig, error) {
	return c.AgentRegistry.Get(name)
}

// GetCapability retrieves a capability configuration by tier name.
func (c *Config) GetCapability(tier string) (*CapabilityConfig, error) {
	return c.CapabilityRegistry.Get(tier)
}
