package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// decodeSettings decodes a stored settings document on top of the defaults so
// that options added after the document was written keep their default value.
func decodeSettings(data []byte) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	if len(data) == 0 {
		return settings, nil
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return domain.DefaultSettings(), fmt.Errorf("decode settings: %w", err)
	}
	settings.AddMissingDefaultChannels()
	return settings, nil
}

// InMemorySettingsRepository implements SettingsRepository using in-memory storage.
type InMemorySettingsRepository struct {
	mu   sync.RWMutex
	data []byte
}

// NewInMemorySettingsRepository creates a new in-memory settings repository.
func NewInMemorySettingsRepository() *InMemorySettingsRepository {
	return &InMemorySettingsRepository{}
}

// Load returns the stored settings merged over the defaults.
func (r *InMemorySettingsRepository) Load(ctx context.Context) (domain.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return decodeSettings(r.data)
}

// Save replaces the stored settings.
func (r *InMemorySettingsRepository) Save(ctx context.Context, settings domain.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	r.mu.Lock()
	r.data = data
	r.mu.Unlock()
	return nil
}
