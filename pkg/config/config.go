package config

// Config is the fully resolved runtime configuration. Registries are
// read-only after process start.
type Config struct {
	configDir string

	DefaultProvider string

	Orchestrator *OrchestratorConfig
	Negotiation  *NegotiationConfig
	Goals        *GoalConfig
	Tasks        *TaskConfig
	Push         *PushConfig
	Retention    *RetentionConfig

	AgentRegistry       *AgentRegistry
	IntentRegistry      *IntentRegistry
	LLMProviderRegistry *LLMProviderRegistry
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// Stats summarizes loaded configuration for startup logging.
type Stats struct {
	Agents       int
	Intents      int
	LLMProviders int
}

// Stats returns counts of loaded configuration objects.
func (c *Config) Stats() Stats {
	return Stats{
		Agents:       c.AgentRegistry.Len(),
		Intents:      c.IntentRegistry.Len(),
		LLMProviders: c.LLMProviderRegistry.Len(),
	}
}
