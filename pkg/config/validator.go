package config

import "fmt"

// Validator checks cross-references and value ranges after loading.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given config.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation check and returns the first failure.
func (v *Validator) ValidateAll() error {
	if err := v.validateAgents(); err != nil {
		return err
	}
	if err := v.validateIntents(); err != nil {
		return err
	}
	if err := v.validateDefaults(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateAgents() error {
	for _, name := range v.cfg.AgentRegistry.Names() {
		agent, _ := v.cfg.AgentRegistry.Get(name)
		if agent.SystemPrompt == "" {
			return NewValidationError("agents", fmt.Sprintf("agent %q has no system prompt", name))
		}
		if agent.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(agent.LLMProvider) {
			return NewValidationError("agents",
				fmt.Sprintf("agent %q references unknown LLM provider %q", name, agent.LLMProvider))
		}
		if agent.MaxToolRounds < 0 {
			return NewValidationError("agents",
				fmt.Sprintf("agent %q has negative max_tool_rounds", name))
		}
	}
	return nil
}

func (v *Validator) validateIntents() error {
	for _, name := range v.cfg.IntentRegistry.Names() {
		intent, _ := v.cfg.IntentRegistry.Get(name)
		for _, agentName := range intent.Agents {
			if !v.cfg.AgentRegistry.Has(agentName) {
				return NewValidationError("intents",
					fmt.Sprintf("intent %q references unknown agent %q", name, agentName))
			}
		}
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	if !v.cfg.LLMProviderRegistry.Has(v.cfg.DefaultProvider) {
		return NewValidationError("default_provider",
			fmt.Sprintf("unknown provider %q", v.cfg.DefaultProvider))
	}
	if v.cfg.Orchestrator.TurnBudget <= 0 {
		return NewValidationError("orchestrator", "turn_budget must be positive")
	}
	if t := v.cfg.Orchestrator.RouterConfidenceThreshold; t < 0 || t > 1 {
		return NewValidationError("orchestrator", "router_confidence_threshold must be in [0,1]")
	}
	if v.cfg.Negotiation.MaxRounds < 1 {
		return NewValidationError("negotiation", "max_rounds must be at least 1")
	}
	if v.cfg.Goals.MaxTotalSteps < v.cfg.Goals.MaxSteps {
		return NewValidationError("goals", "max_total_steps must be >= max_steps")
	}
	if v.cfg.Push.QueueSize < 1 {
		return NewValidationError("push", "queue_size must be at least 1")
	}
	return nil
}
