package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown assistant provider: %s", name)
	}
	return f(ctx, model)
}

// BuiltinProviders returns a registry preloaded with the providers this
// module ships. Credentials and endpoints are captured here; the model is
// chosen at Get time.
func BuiltinProviders(ollamaBaseURL, openRouterBaseURL, openRouterAPIKey, openRouterSiteURL, openRouterAppName string) *Registry {
	r := NewRegistry()
	r.Register("ollama", func(_ context.Context, model string) (Provider, error) {
		return NewOllamaProvider(ollamaBaseURL, model), nil
	})
	r.Register("openrouter", func(_ context.Context, model string) (Provider, error) {
		if openRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter: missing API key")
		}
		return NewOpenRouterProvider(openRouterBaseURL, openRouterAPIKey, model, openRouterSiteURL, openRouterAppName), nil
	})
	return r
}
