package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"careercoach/internal/config"
)

// KeyStore looks up a caller's own provider key; "" means none is stored.
type KeyStore interface {
	HasUserToken(ctx context.Context, userID int64, provider string) (string, error)
}

var dialFactory = func(ctx context.Context, provider, modelName, baseURL, apiKey string) (Oracle, error) {
	return Dial(ctx, provider, modelName, baseURL, apiKey)
}

// Registry hands out the oracle a caller should use: their own key when they
// stored one, the server key otherwise. Clients are reused per provider, model
// and key.
type Registry struct {
	provider  string
	modelName string
	settings  config.ProviderConfig
	keys      KeyStore

	mu      sync.Mutex
	clients map[string]Oracle
}

// NewRegistry builds a registry for the interview provider named in cfg.
func NewRegistry(cfg *config.Config, keys KeyStore) (*Registry, error) {
	provider := cfg.Interview.Provider
	settings, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	modelName := cfg.Interview.Model
	if modelName == "" {
		modelName = settings.Model
	}
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for provider %s", provider)
	}
	return &Registry{
		provider:  provider,
		modelName: modelName,
		settings:  settings,
		keys:      keys,
		clients:   make(map[string]Oracle),
	}, nil
}

// Provider reports the provider name used for every session.
func (r *Registry) Provider() string {
	return r.provider
}

// ForUser resolves the oracle for userID.
func (r *Registry) ForUser(ctx context.Context, userID int64) (Oracle, error) {
	apiKey := r.settings.APIKey
	if r.keys != nil && userID > 0 {
		own, err := r.keys.HasUserToken(ctx, userID, r.provider)
		if err != nil {
			return nil, err
		}
		if own != "" {
			apiKey = own
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoAPIKey, r.provider)
	}

	sum := sha256.Sum256([]byte(apiKey))
	cacheKey := r.provider + "|" + r.modelName + "|" + hex.EncodeToString(sum[:8])

	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.clients[cacheKey]; ok {
		return o, nil
	}
	o, err := dialFactory(ctx, r.provider, r.modelName, r.settings.BaseURL, apiKey)
	if err != nil {
		return nil, err
	}
	r.clients[cacheKey] = o
	return o, nil
}
