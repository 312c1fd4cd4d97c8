package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/ports"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
	_ "modernc.org/sqlite"
)

// ConfigSQLiteStore backs local and single-node deployments.
type ConfigSQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens path (":memory:" for an ephemeral database) with foreign
// keys enabled.
func OpenSQLite(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// each connection to :memory: opens a separate database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func NewConfigSQLiteStore(ctx context.Context, db *sql.DB) (*ConfigSQLiteStore, error) {
	s := &ConfigSQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ConfigSQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite migrate: %w", err)
	}
	return nil
}

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteConfiguration(row sqlScanner) (types.Configuration, error) {
	var c types.Configuration
	var created, updated string
	if err := row.Scan(&c.ID, &c.Name, &c.LocationID, &created, &updated); err != nil {
		return types.Configuration{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return types.Configuration{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return types.Configuration{}, err
	}
	return c, nil
}

func (s *ConfigSQLiteStore) ListConfigurations(ctx context.Context) ([]types.Configuration, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, location_id, created_at, updated_at
FROM autofill_configurations
ORDER BY created_at, id
`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []types.Configuration{}
	for rows.Next() {
		c, err := scanSQLiteConfiguration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ConfigSQLiteStore) GetConfiguration(ctx context.Context, configurationID string) (types.Configuration, error) {
	c, err := scanSQLiteConfiguration(s.db.QueryRowContext(ctx, `
SELECT id, name, location_id, created_at, updated_at
FROM autofill_configurations
WHERE id = ?
`, configurationID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Configuration{}, ports.ErrConfigurationNotFound
	}
	return c, err
}

func (s *ConfigSQLiteStore) CreateConfiguration(ctx context.Context, c types.Configuration) (types.Configuration, error) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO autofill_configurations (id, name, location_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`, c.ID, c.Name, c.LocationID, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return types.Configuration{}, err
	}
	return c, nil
}

func (s *ConfigSQLiteStore) UpdateConfiguration(ctx context.Context, c types.Configuration) (types.Configuration, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE autofill_configurations
SET name = ?, location_id = ?, updated_at = ?
WHERE id = ?
`, c.Name, c.LocationID, formatTime(c.UpdatedAt), c.ID)
	if err != nil {
		return types.Configuration{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return types.Configuration{}, err
	} else if n == 0 {
		return types.Configuration{}, ports.ErrConfigurationNotFound
	}
	return c, nil
}

func (s *ConfigSQLiteStore) DeleteConfiguration(ctx context.Context, configurationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM autofill_extraction_fields WHERE configuration_id = ?`, configurationID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM autofill_configurations WHERE id = ?`, configurationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ports.ErrConfigurationNotFound
	}
	return tx.Commit()
}

const sqliteFieldColumns = `
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
  updated_at`

func scanSQLiteField(row sqlScanner) (types.ExtractionFieldConfig, error) {
	var cfg types.ExtractionFieldConfig
	var kind, policy, created, updated string
	var snapshot sql.NullString
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
		&created,
		&updated,
	); err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	cfg.TargetKind = types.TargetKind(kind)
	cfg.OverwritePolicy = types.OverwritePolicy(policy)

	var err error
	if snapshot.Valid {
		if cfg.OriginalRemoteSnapshot, err = decodeSnapshot([]byte(snapshot.String)); err != nil {
			return types.ExtractionFieldConfig{}, err
		}
	}
	if cfg.CreatedAt, err = parseTime(created); err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	if cfg.UpdatedAt, err = parseTime(updated); err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	return normalizeLoaded(cfg), nil
}

func (s *ConfigSQLiteStore) ListFieldConfigs(ctx context.Context, configurationID string) ([]types.ExtractionFieldConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT`+sqliteFieldColumns+`
FROM autofill_extraction_fields
WHERE configuration_id = ?
ORDER BY sort_order, created_at, id
`, configurationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []types.ExtractionFieldConfig{}
	for rows.Next() {
		cfg, err := scanSQLiteField(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *ConfigSQLiteStore) GetFieldConfig(ctx context.Context, configurationID string, fieldID string) (types.ExtractionFieldConfig, error) {
	cfg, err := scanSQLiteField(s.db.QueryRowContext(ctx, `
SELECT`+sqliteFieldColumns+`
FROM autofill_extraction_fields
WHERE configuration_id = ? AND id = ?
`, configurationID, fieldID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.ExtractionFieldConfig{}, ports.ErrFieldConfigNotFound
	}
	return cfg, err
}

func nullableSnapshot(cfg types.ExtractionFieldConfig) (any, error) {
	raw, err := encodeSnapshot(cfg.OriginalRemoteSnapshot)
	if err != nil || raw == nil {
		return nil, err
	}
	return string(raw), nil
}

func (s *ConfigSQLiteStore) CreateFieldConfig(ctx context.Context, cfg types.ExtractionFieldConfig) (types.ExtractionFieldConfig, error) {
	snapshot, err := nullableSnapshot(cfg)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	if _, err := s.GetConfiguration(ctx, cfg.ConfigurationID); err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO autofill_extraction_fields (`+sqliteFieldColumns+`
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		formatTime(cfg.CreatedAt),
		formatTime(cfg.UpdatedAt),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return types.ExtractionFieldConfig{}, ports.ErrTargetKeyConflict
		}
		return types.ExtractionFieldConfig{}, err
	}
	return cfg, nil
}

func (s *ConfigSQLiteStore) UpdateFieldConfig(ctx context.Context, cfg types.ExtractionFieldConfig) (types.ExtractionFieldConfig, error) {
	snapshot, err := nullableSnapshot(cfg)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE autofill_extraction_fields
SET
  field_name = ?,
  target_key = ?,
  target_kind = ?,
  field_key = ?,
  field_type = ?,
  overwrite_policy = ?,
  condition_expr = ?,
  description = ?,
  sort_order = ?,
  original_remote_snapshot = ?,
  updated_at = ?
WHERE configuration_id = ? AND id = ?
`,
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
		formatTime(cfg.UpdatedAt),
		cfg.ConfigurationID,
		cfg.ID,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return types.ExtractionFieldConfig{}, ports.ErrTargetKeyConflict
		}
		return types.ExtractionFieldConfig{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return types.ExtractionFieldConfig{}, err
	} else if n == 0 {
		return types.ExtractionFieldConfig{}, ports.ErrFieldConfigNotFound
	}
	return cfg, nil
}

func (s *ConfigSQLiteStore) DeleteFieldConfig(ctx context.Context, configurationID string, fieldID string) error {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM autofill_extraction_fields
WHERE configuration_id = ? AND id = ?
`, configurationID, fieldID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ports.ErrFieldConfigNotFound
	}
	return nil
}
