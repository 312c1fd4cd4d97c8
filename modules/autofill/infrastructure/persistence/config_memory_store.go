package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/ports"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

// ConfigMemoryStore keeps everything in process memory. Values are cloned on
// the way in and out so callers never share state with the store.
type ConfigMemoryStore struct {
	mu     sync.RWMutex
	owners map[string]types.Configuration
	fields map[string]types.ExtractionFieldConfig
}

func NewConfigMemoryStore() *ConfigMemoryStore {
	return &ConfigMemoryStore{
		owners: map[string]types.Configuration{},
		fields: map[string]types.ExtractionFieldConfig{},
	}
}

func (s *ConfigMemoryStore) ListConfigurations(context.Context) ([]types.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Configuration, 0, len(s.owners))
	for _, c := range s.owners {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *ConfigMemoryStore) GetConfiguration(_ context.Context, configurationID string) (types.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.owners[configurationID]
	if !ok {
		return types.Configuration{}, ports.ErrConfigurationNotFound
	}
	return c, nil
}

func (s *ConfigMemoryStore) CreateConfiguration(_ context.Context, c types.Configuration) (types.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[c.ID] = c
	return c, nil
}

func (s *ConfigMemoryStore) UpdateConfiguration(_ context.Context, c types.Configuration) (types.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[c.ID]; !ok {
		return types.Configuration{}, ports.ErrConfigurationNotFound
	}
	s.owners[c.ID] = c
	return c, nil
}

func (s *ConfigMemoryStore) DeleteConfiguration(_ context.Context, configurationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[configurationID]; !ok {
		return ports.ErrConfigurationNotFound
	}
	delete(s.owners, configurationID)
	for id, f := range s.fields {
		if f.ConfigurationID == configurationID {
			delete(s.fields, id)
		}
	}
	return nil
}

func (s *ConfigMemoryStore) ListFieldConfigs(_ context.Context, configurationID string) ([]types.ExtractionFieldConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []types.ExtractionFieldConfig{}
	for _, f := range s.fields {
		if f.ConfigurationID == configurationID {
			out = append(out, normalizeLoaded(f.Clone()))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *ConfigMemoryStore) GetFieldConfig(_ context.Context, configurationID string, fieldID string) (types.ExtractionFieldConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fields[fieldID]
	if !ok || f.ConfigurationID != configurationID {
		return types.ExtractionFieldConfig{}, ports.ErrFieldConfigNotFound
	}
	return normalizeLoaded(f.Clone()), nil
}

func (s *ConfigMemoryStore) targetKeyTaken(cfg types.ExtractionFieldConfig) bool {
	for _, other := range s.fields {
		if other.ID != cfg.ID && other.ConfigurationID == cfg.ConfigurationID && other.TargetKey == cfg.TargetKey {
			return true
		}
	}
	return false
}

func (s *ConfigMemoryStore) CreateFieldConfig(_ context.Context, cfg types.ExtractionFieldConfig) (types.ExtractionFieldConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[cfg.ConfigurationID]; !ok {
		return types.ExtractionFieldConfig{}, ports.ErrConfigurationNotFound
	}
	if s.targetKeyTaken(cfg) {
		return types.ExtractionFieldConfig{}, ports.ErrTargetKeyConflict
	}
	s.fields[cfg.ID] = cfg.Clone()
	return cfg, nil
}

func (s *ConfigMemoryStore) UpdateFieldConfig(_ context.Context, cfg types.ExtractionFieldConfig) (types.ExtractionFieldConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.fields[cfg.ID]
	if !ok || current.ConfigurationID != cfg.ConfigurationID {
		return types.ExtractionFieldConfig{}, ports.ErrFieldConfigNotFound
	}
	if s.targetKeyTaken(cfg) {
		return types.ExtractionFieldConfig{}, ports.ErrTargetKeyConflict
	}
	s.fields[cfg.ID] = cfg.Clone()
	return cfg, nil
}

func (s *ConfigMemoryStore) DeleteFieldConfig(_ context.Context, configurationID string, fieldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[fieldID]
	if !ok || f.ConfigurationID != configurationID {
		return ports.ErrFieldConfigNotFound
	}
	delete(s.fields, fieldID)
	return nil
}
