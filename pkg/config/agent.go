// Package config provides configuration management for the Kazi system,
// including agent, intent, LLM provider, and runtime configurations.
package config

import (
	"fmt"
	"sync"
)

// AgentConfig defines one specialized agent. Execution lives in
// agent.Runner; this is metadata only.
type AgentConfig struct {
	// Human-readable name used in user-facing messages ("Scout", "Match"…)
	DisplayName string `yaml:"display_name"`

	// One-line description of what this agent does
	Role string `yaml:"role"`

	// System prompt defining the agent's expertise. {{TOOLS}} is replaced
	// with the rendered tool list at prompt-build time.
	SystemPrompt string `yaml:"system_prompt"`

	// Tool names this agent may call (must exist in the tool registry)
	Tools []string `yaml:"tools"`

	// Output fields compared by the negotiator when checking consensus
	TrackedFields []string `yaml:"tracked_fields,omitempty"`

	// Max reason/act/observe rounds before a forced final answer.
	// Zero means use the orchestrator default.
	MaxToolRounds int `yaml:"max_tool_rounds,omitempty"`

	// LLM provider name override; empty means the default provider
	LLMProvider string `yaml:"llm_provider,omitempty"`
}

// AgentRegistry stores agent configurations in memory with thread-safe access.
// Read-only after process start.
type AgentRegistry struct {
	agents map[string]*AgentConfig
	mu     sync.RWMutex
}

// NewAgentRegistry creates a new agent registry.
func NewAgentRegistry(agents map[string]*AgentConfig) *AgentRegistry {
	copied := make(map[string]*AgentConfig, len(agents))
	for k, v := range agents {
		copied[k] = v
	}
	return &AgentRegistry{agents: copied}
}

// Get retrieves an agent configuration by name.
func (r *AgentRegistry) Get(name string) (*AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.agents[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return agent, nil
}

// Has checks if an agent exists in the registry.
func (r *AgentRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.agents[name]
	return exists
}

// Names returns all registered agent names.
func (r *AgentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Len returns the number of agents in the registry.
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
