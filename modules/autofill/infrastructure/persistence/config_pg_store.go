package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/ports"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

const pgUniqueViolation = "23505"

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type ConfigPGStore struct {
	pool pgBeginner
}

func NewConfigPGStore(pool pgBeginner) *ConfigPGStore {
	return &ConfigPGStore{pool: pool}
}

const pgFieldColumns = `
  id::text,
  configuration_id::text,
  field_name,
  target_key,
  target_kind,
  field_key,
  field_type,
  overwrite_policy,
  condition_expr,
  description,
  sort_order,
  original_remote_snapshot,
  created_at,
  updated_at`

// validUUID keeps malformed ids from reaching a uuid cast; they can only ever
// be "not found".
func validUUID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

func isUniqueViolation(err error) bool {
	pgErr, ok := errors.AsType[*pgconn.PgError](err)
	return ok && pgErr != nil && pgErr.Code == pgUniqueViolation
}

func (s *ConfigPGStore) ListConfigurations(ctx context.Context) ([]types.Configuration, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT id::text, name, location_id, created_at, updated_at
FROM autofill.configurations
ORDER BY created_at, id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.Configuration{}
	for rows.Next() {
		var c types.Configuration
		if err := rows.Scan(&c.ID, &c.Name, &c.LocationID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ConfigPGStore) GetConfiguration(ctx context.Context, configurationID string) (types.Configuration, error) {
	if !validUUID(configurationID) {
		return types.Configuration{}, ports.ErrConfigurationNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Configuration{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var c types.Configuration
	if err := tx.QueryRow(ctx, `
SELECT id::text, name, location_id, created_at, updated_at
FROM autofill.configurations
WHERE id = $1::uuid
`, configurationID).Scan(&c.ID, &c.Name, &c.LocationID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Configuration{}, ports.ErrConfigurationNotFound
		}
		return types.Configuration{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Configuration{}, err
	}
	return c, nil
}

func (s *ConfigPGStore) CreateConfiguration(ctx context.Context, c types.Configuration) (types.Configuration, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Configuration{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO autofill.configurations (id, name, location_id, created_at, updated_at)
VALUES ($1::uuid, $2::text, $3::text, $4, $5)
`, c.ID, c.Name, c.LocationID, c.CreatedAt, c.UpdatedAt); err != nil {
		return types.Configuration{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Configuration{}, err
	}
	return c, nil
}

func (s *ConfigPGStore) UpdateConfiguration(ctx context.Context, c types.Configuration) (types.Configuration, error) {
	if !validUUID(c.ID) {
		return types.Configuration{}, ports.ErrConfigurationNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Configuration{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
UPDATE autofill.configurations
SET name = $2::text, location_id = $3::text, updated_at = $4
WHERE id = $1::uuid
`, c.ID, c.Name, c.LocationID, c.UpdatedAt)
	if err != nil {
		return types.Configuration{}, err
	}
	if tag.RowsAffected() == 0 {
		return types.Configuration{}, ports.ErrConfigurationNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Configuration{}, err
	}
	return c, nil
}

func (s *ConfigPGStore) DeleteConfiguration(ctx context.Context, configurationID string) error {
	if !validUUID(configurationID) {
		return ports.ErrConfigurationNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `DELETE FROM autofill.extraction_fields WHERE configuration_id = $1::uuid`, configurationID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM autofill.configurations WHERE id = $1::uuid`, configurationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrConfigurationNotFound
	}
	return tx.Commit(ctx)
}

func scanPGField(row pgx.Row) (types.ExtractionFieldConfig, error) {
	var cfg types.ExtractionFieldConfig
	var kind, policy string
	var snapshot []byte
	if err := row.Scan(
		&cfg.ID,
		&cfg.ConfigurationID,
		&cfg.FieldName,
		&cfg.TargetKey,
		&kind,
		&cfg.FieldKey,
		&cfg.FieldType,
		&policy,
		&cfg.ConditionExpr,
		&cfg.Description,
		&cfg.SortOrder,
		&snapshot,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	cfg.TargetKind = types.TargetKind(kind)
	cfg.OverwritePolicy = types.OverwritePolicy(policy)
	snap, err := decodeSnapshot(snapshot)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	cfg.OriginalRemoteSnapshot = snap
	return normalizeLoaded(cfg), nil
}

func (s *ConfigPGStore) ListFieldConfigs(ctx context.Context, configurationID string) ([]types.ExtractionFieldConfig, error) {
	if !validUUID(configurationID) {
		return []types.ExtractionFieldConfig{}, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT`+pgFieldColumns+`
FROM autofill.extraction_fields
WHERE configuration_id = $1::uuid
ORDER BY sort_order, created_at, id
`, configurationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.ExtractionFieldConfig{}
	for rows.Next() {
		cfg, err := scanPGField(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ConfigPGStore) GetFieldConfig(ctx context.Context, configurationID string, fieldID string) (types.ExtractionFieldConfig, error) {
	if !validUUID(configurationID) || !validUUID(fieldID) {
		return types.ExtractionFieldConfig{}, ports.ErrFieldConfigNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	cfg, err := scanPGField(tx.QueryRow(ctx, `
SELECT`+pgFieldColumns+`
FROM autofill.extraction_fields
WHERE configuration_id = $1::uuid AND id = $2::uuid
`, configurationID, fieldID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ExtractionFieldConfig{}, ports.ErrFieldConfigNotFound
		}
		return types.ExtractionFieldConfig{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	return cfg, nil
}

func (s *ConfigPGStore) CreateFieldConfig(ctx context.Context, cfg types.ExtractionFieldConfig) (types.ExtractionFieldConfig, error) {
	if !validUUID(cfg.ConfigurationID) {
		return types.ExtractionFieldConfig{}, ports.ErrConfigurationNotFound
	}
	snapshot, err := encodeSnapshot(cfg.OriginalRemoteSnapshot)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM autofill.configurations WHERE id = $1::uuid)`, cfg.ConfigurationID).Scan(&exists); err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	if !exists {
		return types.ExtractionFieldConfig{}, ports.ErrConfigurationNotFound
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO autofill.extraction_fields (
  id,
  configuration_id,
  field_name,
  target_key,
  target_kind,
  field_key,
  field_type,
  overwrite_policy,
  condition_expr,
  description,
  sort_order,
  original_remote_snapshot,
  created_at,
  updated_at
)
VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, $14)
`,
		cfg.ID,
		cfg.ConfigurationID,
		cfg.FieldName,
		cfg.TargetKey,
		string(cfg.TargetKind),
		cfg.FieldKey,
		cfg.FieldType,
		string(cfg.OverwritePolicy),
		cfg.ConditionExpr,
		cfg.Description,
		cfg.SortOrder,
		snapshot,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.ExtractionFieldConfig{}, ports.ErrTargetKeyConflict
		}
		return types.ExtractionFieldConfig{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	return cfg, nil
}

func (s *ConfigPGStore) UpdateFieldConfig(ctx context.Context, cfg types.ExtractionFieldConfig) (types.ExtractionFieldConfig, error) {
	if !validUUID(cfg.ConfigurationID) || !validUUID(cfg.ID) {
		return types.ExtractionFieldConfig{}, ports.ErrFieldConfigNotFound
	}
	snapshot, err := encodeSnapshot(cfg.OriginalRemoteSnapshot)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
UPDATE autofill.extraction_fields
SET
  field_name = $3,
  target_key = $4,
  target_kind = $5,
  field_key = $6,
  field_type = $7,
  overwrite_policy = $8,
  condition_expr = $9,
  description = $10,
  sort_order = $11,
  original_remote_snapshot = $12::jsonb,
  updated_at = $13
WHERE configuration_id = $1::uuid AND id = $2::uuid
`,
		cfg.ConfigurationID,
		cfg.ID,
		cfg.FieldName,
		cfg.TargetKey,
		string(cfg.TargetKind),
		cfg.FieldKey,
		cfg.FieldType,
		string(cfg.OverwritePolicy),
		cfg.ConditionExpr,
		cfg.Description,
		cfg.SortOrder,
		snapshot,
		cfg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ExtractionFieldConfig{}, ports.ErrTargetKeyConflict
		}
		return types.ExtractionFieldConfig{}, err
	}
	if tag.RowsAffected() == 0 {
		return types.ExtractionFieldConfig{}, ports.ErrFieldConfigNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	return cfg, nil
}

func (s *ConfigPGStore) DeleteFieldConfig(ctx context.Context, configurationID string, fieldID string) error {
	if !validUUID(configurationID) || !validUUID(fieldID) {
		return ports.ErrFieldConfigNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
DELETE FROM autofill.extraction_fields
WHERE configuration_id = $1::uuid AND id = $2::uuid
`, configurationID, fieldID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrFieldConfigNotFound
	}
	return tx.Commit(ctx)
}
