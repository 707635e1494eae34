package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	ensembleFile     = "ensemble.yaml"
	capabilitiesFile = "capabilities.yaml"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir (both optional; built-ins cover gaps)
//  2. Expand environment variables
//  3. Merge built-in + user-defined agents and capabilities
//  4. Apply defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"agents", stats.Agents,
		"capabilities", stats.Capabilities)
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	// 1. Load ensemble.yaml (system settings, agents, defaults)
	ensembleCfg, err := loadEnsembleYAML(configDir)
	if err != nil {
		return nil, NewLoadError(ensembleFile, err)
	}

	// 2. Load capabilities.yaml
	capsCfg, err := loadCapabilitiesYAML(configDir)
	if err != nil {
		return nil, NewLoadError(capabilitiesFile, err)
	}

	// 3. Merge built-in + user-defined components (user overrides built-in)
	builtin := GetBuiltinConfig()
	agents := mergeAgents(builtin.Agents, ensembleCfg.Agents)
	capabilities := mergeCapabilities(builtin.Capabilities, capsCfg.Capabilities)

	// 4. Merge system settings and defaults field by field
	system, err := mergeSystem(ensembleCfg.System)
	if err != nil {
		return nil, fmt.Errorf("merging system config: %w", err)
	}
	defaults, err := mergeDefaults(ensembleCfg.Defaults)
	if err != nil {
		return nil, fmt.Errorf("merging defaults: %w", err)
	}

	// 5. Apply defaults to components that omit values
	applyAgentDefaults(agents, defaults)
	applyCapabilityDefaults(capabilities, defaults)

	return &Config{
		configDir:          configDir,
		System:             system,
		Defaults:           defaults,
		AgentRegistry:      NewAgentRegistry(agents),
		CapabilityRegistry: NewCapabilityRegistry(capabilities),
	}, nil
}

// loadEnsembleYAML reads and parses ensemble.yaml. A missing file yields
// an empty config (built-ins only).
func loadEnsembleYAML(configDir string) (*EnsembleYAMLConfig, error) {
	data, err := readConfigFile(filepath.Join(configDir, ensembleFile))
	if err != nil {
		return nil, err
	}
	cfg := &EnsembleYAMLConfig{}
	if data == nil {
		return cfg, nil
	}
	if err := yaml.Unmarshal(ExpandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidYAML, err)
	}
	return cfg, nil
}

// loadCapabilitiesYAML reads and parses capabilities.yaml. A missing file
// yields an empty config (built-ins only).
func loadCapabilitiesYAML(configDir string) (*CapabilitiesYAMLConfig, error) {
	data, err := readConfigFile(filepath.Join(configDir, capabilitiesFile))
	if err != nil {
		return nil, err
	}
	cfg := &CapabilitiesYAMLConfig{}
	if data == nil {
		return cfg, nil
	}
	if err := yaml.Unmarshal(ExpandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidYAML, err)
	}
	return cfg, nil
}

// readConfigFile returns nil data (no error) when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Config file not present, using built-ins", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
