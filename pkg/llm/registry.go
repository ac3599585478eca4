package llm

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/kaziai/kazi/pkg/config"
)

// Registry resolves provider names to ready clients. Providers whose API key
// environment variable is unset are skipped at construction and resolve to
// an error at call time.
type Registry struct {
	mu          sync.RWMutex
	clients     map[string]Client
	defaultName string
}

// NewRegistry builds clients for every configured provider with a usable
// API key. The default provider must be usable.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	clients := make(map[string]Client)

	for _, name := range cfg.LLMProviderRegistry.Names() {
		pc, _ := cfg.LLMProviderRegistry.Get(name)

		apiKey := os.Getenv(pc.APIKeyEnv)
		if apiKey == "" {
			slog.Warn("Skipping LLM provider, API key not set",
				"provider", name, "env", pc.APIKeyEnv)
			continue
		}

		client, err := NewOpenAIClient(OpenAIOptions{
			APIKey:      apiKey,
			BaseURL:     pc.BaseURL,
			Model:       pc.Model,
			Temperature: pc.Temperature,
			MaxTokens:   pc.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build LLM client %q: %w", name, err)
		}
		clients[name] = Instrument(name, client)
		slog.Info("LLM provider ready", "provider", name, "model", pc.Model)
	}

	if _, ok := clients[cfg.DefaultProvider]; !ok {
		return nil, fmt.Errorf("default LLM provider %q is not usable (missing API key?)", cfg.DefaultProvider)
	}

	return &Registry{
		clients:     clients,
		defaultName: cfg.DefaultProvider,
	}, nil
}

// NewRegistryFromClients builds a registry from pre-built clients (useful
// for testing).
func NewRegistryFromClients(clients map[string]Client, defaultName string) *Registry {
	return &Registry{clients: clients, defaultName: defaultName}
}

// Get returns the named client.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q not available", ErrUnavailable, name)
	}
	return client, nil
}

// ForProvider resolves a provider name, falling back to the default when
// the name is empty.
func (r *Registry) ForProvider(name string) (Client, error) {
	if name == "" {
		name = r.defaultName
	}
	return r.Get(name)
}

// Default returns the default client.
func (r *Registry) Default() Client {
	client, _ := r.Get(r.defaultName)
	return client
}
