package ports

import (
	"context"
	"errors"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

var (
	ErrConfigurationNotFound = errors.New("configuration_not_found")
	ErrFieldConfigNotFound   = errors.New("field_config_not_found")
	ErrRecordNotFound        = errors.New("record_not_found")
	ErrTargetKeyConflict     = errors.New("target_key_conflict")
)

// ConfigStore persists configurations and their extraction fields. Field
// lists come back ordered by sort_order, then created_at.
type ConfigStore interface {
	ListConfigurations(ctx context.Context) ([]types.Configuration, error)
	GetConfiguration(ctx context.Context, configurationID string) (types.Configuration, error)
	CreateConfiguration(ctx context.Context, cfg types.Configuration) (types.Configuration, error)
	UpdateConfiguration(ctx context.Context, cfg types.Configuration) (types.Configuration, error)
	DeleteConfiguration(ctx context.Context, configurationID string) error

	ListFieldConfigs(ctx context.Context, configurationID string) ([]types.ExtractionFieldConfig, error)
	GetFieldConfig(ctx context.Context, configurationID string, fieldID string) (types.ExtractionFieldConfig, error)
	CreateFieldConfig(ctx context.Context, cfg types.ExtractionFieldConfig) (types.ExtractionFieldConfig, error)
	UpdateFieldConfig(ctx context.Context, cfg types.ExtractionFieldConfig) (types.ExtractionFieldConfig, error)
	DeleteFieldConfig(ctx context.Context, configurationID string, fieldID string) error
}

type RecordStore interface {
	GetRecord(ctx context.Context, recordID string) (types.RecordAttributeSet, error)
	UpdateRecord(ctx context.Context, recordID string, payload types.RecordPayload) error
}

type FieldSchemaStore interface {
	ListCustomFields(ctx context.Context, locationID string) ([]types.RemoteFieldSnapshot, error)
	CreateCustomField(ctx context.Context, locationID string, payload types.CreateFieldPayload) (types.RemoteFieldSnapshot, error)
}
