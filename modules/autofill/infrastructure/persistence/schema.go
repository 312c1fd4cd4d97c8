package persistence

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/fieldmeta"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

func PostgresSchema() string { return postgresSchema }
func SQLiteSchema() string   { return sqliteSchema }

func encodeSnapshot(s *types.RemoteFieldSnapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func decodeSnapshot(raw []byte) (*types.RemoteFieldSnapshot, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var out types.RemoteFieldSnapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// normalizeLoaded applies read-side defaults to a stored row: legacy rows
// without a stored kind are classified, and unknown policies fold to always.
func normalizeLoaded(cfg types.ExtractionFieldConfig) types.ExtractionFieldConfig {
	cfg.TargetKind = fieldmeta.TargetKindOf(cfg)
	cfg.OverwritePolicy = types.NormalizeOverwritePolicy(string(cfg.OverwritePolicy))
	return cfg
}
