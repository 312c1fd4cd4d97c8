package services

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/fieldmeta"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

// FieldSync reconciles stored snapshots with a freshly listed remote schema.
type FieldSync struct{}

// Sync returns the configs that need to be persisted. Live fields overwrite
// the stored snapshot and propagate renames; configs whose field vanished are
// reported in Missing and left untouched. Inputs are not modified.
func (FieldSync) Sync(configs []types.ExtractionFieldConfig, remote []types.RemoteFieldSnapshot) types.SyncResult {
	byID := make(map[string]types.RemoteFieldSnapshot, len(remote))
	for _, f := range remote {
		id := strings.TrimSpace(f.ID)
		if id == "" {
			continue
		}
		if _, ok := byID[id]; !ok {
			byID[id] = f
		}
	}

	result := types.SyncResult{
		Updated: []types.ExtractionFieldConfig{},
		Renamed: []string{},
		Missing: []string{},
	}
	for _, cfg := range configs {
		if fieldmeta.TargetKindOf(cfg) != types.TargetKindCustom {
			continue
		}
		live, ok := byID[strings.TrimSpace(cfg.TargetKey)]
		if !ok {
			result.Missing = append(result.Missing, cfg.ID)
			continue
		}

		next := cfg.Clone()
		changed := false

		if live.Name != "" && live.Name != cfg.FieldName {
			next.FieldName = live.Name
			result.Renamed = append(result.Renamed, cfg.ID)
			changed = true
		}
		if live.DataType != "" && live.DataType != cfg.FieldType {
			next.FieldType = live.DataType
			changed = true
		}
		if live.FieldKey != "" && live.FieldKey != cfg.FieldKey && fieldKeyFollowsSnapshot(cfg) {
			next.FieldKey = live.FieldKey
			changed = true
		}

		snap := live.Clone()
		if !sameSnapshot(cfg.OriginalRemoteSnapshot, &snap) {
			changed = true
		}
		next.OriginalRemoteSnapshot = &snap

		if changed {
			result.Updated = append(result.Updated, next)
		}
	}
	return result
}

// fieldKeyFollowsSnapshot is true when the config's field_key was never set
// independently of the remote definition.
func fieldKeyFollowsSnapshot(cfg types.ExtractionFieldConfig) bool {
	if strings.TrimSpace(cfg.FieldKey) == "" {
		return true
	}
	return cfg.OriginalRemoteSnapshot != nil && cfg.OriginalRemoteSnapshot.FieldKey == cfg.FieldKey
}

func sameSnapshot(a, b *types.RemoteFieldSnapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	ca, err := canonicalSnapshot(*a)
	if err != nil {
		return false
	}
	cb, err := canonicalSnapshot(*b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

func canonicalSnapshot(s types.RemoteFieldSnapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
