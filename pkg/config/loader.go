package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// KaziYAMLConfig represents the complete kazi.yaml file structure.
type KaziYAMLConfig struct {
	Agents  map[string]*AgentConfig  `yaml:"agents"`
	Intents map[string]*IntentConfig `yaml:"intents"`

	DefaultProvider string `yaml:"default_provider"`

	Orchestrator *OrchestratorConfig `yaml:"orchestrator"`
	Negotiation  *NegotiationConfig  `yaml:"negotiation"`
	Goals        *GoalConfig         `yaml:"goals"`
	Tasks        *TaskConfig         `yaml:"tasks"`
	Push         *PushConfig         `yaml:"push"`
	Retention    *RetentionConfig    `yaml:"retention"`
}

// LLMProvidersYAMLConfig represents the llm-providers.yaml file structure.
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]*LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir (both optional, built-ins cover everything)
//  2. Expand environment variables
//  3. Merge built-in + user-defined configurations
//  4. Build in-memory registries and apply defaults
//  5. Validate cross-references
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"agents", stats.Agents,
		"intents", stats.Intents,
		"llm_providers", stats.LLMProviders)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	kaziCfg, err := loadKaziYAML(configDir)
	if err != nil {
		return nil, NewLoadError("kazi.yaml", err)
	}

	providersCfg, err := loadLLMProvidersYAML(configDir)
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	builtin := GetBuiltinConfig()

	agents := mergeMaps(builtin.Agents, kaziCfg.Agents)
	intents := mergeMaps(builtin.Intents, kaziCfg.Intents)
	providers := mergeMaps(builtin.LLMProviders, providersCfg.LLMProviders)

	defaultProvider := kaziCfg.DefaultProvider
	if defaultProvider == "" {
		defaultProvider = builtin.DefaultProvider
	}

	orchCfg := DefaultOrchestratorConfig()
	if kaziCfg.Orchestrator != nil {
		if err := mergo.Merge(orchCfg, kaziCfg.Orchestrator, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge orchestrator config: %w", err)
		}
	}

	negCfg := DefaultNegotiationConfig()
	if kaziCfg.Negotiation != nil {
		if err := mergo.Merge(negCfg, kaziCfg.Negotiation, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge negotiation config: %w", err)
		}
	}

	goalCfg := DefaultGoalConfig()
	if kaziCfg.Goals != nil {
		if err := mergo.Merge(goalCfg, kaziCfg.Goals, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge goals config: %w", err)
		}
	}

	taskCfg := DefaultTaskConfig()
	if kaziCfg.Tasks != nil {
		if err := mergo.Merge(taskCfg, kaziCfg.Tasks, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge tasks config: %w", err)
		}
	}

	pushCfg := DefaultPushConfig()
	if kaziCfg.Push != nil {
		if err := mergo.Merge(pushCfg, kaziCfg.Push, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge push config: %w", err)
		}
	}

	retentionCfg := DefaultRetentionConfig()
	if kaziCfg.Retention != nil {
		if err := mergo.Merge(retentionCfg, kaziCfg.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	return &Config{
		configDir:           configDir,
		DefaultProvider:     defaultProvider,
		Orchestrator:        orchCfg,
		Negotiation:         negCfg,
		Goals:               goalCfg,
		Tasks:               taskCfg,
		Push:                pushCfg,
		Retention:           retentionCfg,
		AgentRegistry:       NewAgentRegistry(agents),
		IntentRegistry:      NewIntentRegistry(intents),
		LLMProviderRegistry: NewLLMProviderRegistry(providers),
	}, nil
}

// loadKaziYAML reads kazi.yaml; a missing file yields an empty config.
func loadKaziYAML(configDir string) (*KaziYAMLConfig, error) {
	path := filepath.Join(configDir, "kazi.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No kazi.yaml found, using built-in configuration", "path", path)
			return &KaziYAMLConfig{}, nil
		}
		return nil, err
	}

	var cfg KaziYAMLConfig
	if err := yaml.Unmarshal(ExpandEnv(data), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadLLMProvidersYAML reads llm-providers.yaml; a missing file yields an
// empty provider set.
func loadLLMProvidersYAML(configDir string) (*LLMProvidersYAMLConfig, error) {
	path := filepath.Join(configDir, "llm-providers.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LLMProvidersYAMLConfig{}, nil
		}
		return nil, err
	}

	var cfg LLMProvidersYAMLConfig
	if err := yaml.Unmarshal(ExpandEnv(data), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeMaps overlays user entries onto built-in entries (user wins).
func mergeMaps[T any](builtin, user map[string]*T) map[string]*T {
	merged := make(map[string]*T, len(builtin)+len(user))
	for k, v := range builtin {
		merged[k] = v
	}
	for k, v := range user {
		merged[k] = v
	}
	return merged
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
