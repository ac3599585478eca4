package config

import (
	"fmt"
	"sync"
)

// IntentConfig maps a recognized intent to its default agent pipeline.
// Intent→agent mappings are configuration, not orchestrator code.
type IntentConfig struct {
	// Ordered default pipeline for this intent
	Agents []string `yaml:"agents"`

	// Description shown to the routing model
	Description string `yaml:"description,omitempty"`

	// Negotiate enables the debate phase when agents in this pipeline
	// diverge on their outputs
	Negotiate bool `yaml:"negotiate,omitempty"`
}

// IntentRegistry stores intent configurations with thread-safe access.
type IntentRegistry struct {
	intents map[string]*IntentConfig
	mu      sync.RWMutex
}

// NewIntentRegistry creates a new intent registry.
func NewIntentRegistry(intents map[string]*IntentConfig) *IntentRegistry {
	copied := make(map[string]*IntentConfig, len(intents))
	for k, v := range intents {
		copied[k] = v
	}
	return &IntentRegistry{intents: copied}
}

// Get retrieves an intent configuration by name.
func (r *IntentRegistry) Get(name string) (*IntentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	intent, exists := r.intents[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, name)
	}
	return intent, nil
}

// Has checks if an intent exists in the registry.
func (r *IntentRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.intents[name]
	return exists
}

// Names returns all registered intent names.
func (r *IntentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.intents))
	for name := range r.intents {
		names = append(names, name)
	}
	return names
}

// Len returns the number of intents in the registry.
func (r *IntentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.intents)
}
