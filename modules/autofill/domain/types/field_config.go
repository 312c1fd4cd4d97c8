package types

import (
	"strings"
	"time"
)

type OverwritePolicy string

const (
	OverwriteAlways  OverwritePolicy = "always"
	OverwriteIfEmpty OverwritePolicy = "if_empty"
	OverwriteNever   OverwritePolicy = "never"
)

// NormalizeOverwritePolicy folds absent or unrecognized values (including the
// UI's "ask", which has no runtime path) to always.
func NormalizeOverwritePolicy(raw string) OverwritePolicy {
	switch OverwritePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case OverwriteIfEmpty:
		return OverwriteIfEmpty
	case OverwriteNever:
		return OverwriteNever
	default:
		return OverwriteAlways
	}
}

type TargetKind string

const (
	TargetKindStandard TargetKind = "standard"
	TargetKindCustom   TargetKind = "custom"
)

// Configuration owns a set of extraction fields and points at the CRM scope
// (location) whose records and custom fields they target.
type Configuration struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	LocationID string    `json:"location_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ExtractionFieldConfig struct {
	ID              string          `json:"id"`
	ConfigurationID string          `json:"configuration_id"`
	FieldName       string          `json:"field_name"`
	TargetKey       string          `json:"target_key"`
	TargetKind      TargetKind      `json:"target_kind"`
	FieldKey        string          `json:"field_key,omitempty"`
	FieldType       string          `json:"field_type"`
	OverwritePolicy OverwritePolicy `json:"overwrite_policy"`
	ConditionExpr   string          `json:"condition_expr,omitempty"`
	Description     string          `json:"description,omitempty"`
	SortOrder       int             `json:"sort_order"`

	OriginalRemoteSnapshot *RemoteFieldSnapshot `json:"original_remote_snapshot,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with c.
func (c ExtractionFieldConfig) Clone() ExtractionFieldConfig {
	if c.OriginalRemoteSnapshot != nil {
		snap := c.OriginalRemoteSnapshot.Clone()
		c.OriginalRemoteSnapshot = &snap
	}
	return c
}
