package services

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/fieldmeta"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

const (
	SkipEmptyValue       = "EMPTY_VALUE"
	SkipNoConfig         = "NO_CONFIG"
	SkipPolicyNever      = "POLICY_NEVER"
	SkipPolicyNotEmpty   = "POLICY_IF_EMPTY_NOT_EMPTY"
	SkipConditionFalse   = "CONDITION_FALSE"
	SkipConditionInvalid = "CONDITION_INVALID"
)

// MergeEngine decides, per extracted key, whether its value may be written
// into the record and assembles the update payload. It never mutates the record.
type MergeEngine struct {
	conditions *ConditionEvaluator
}

func NewMergeEngine(conditions *ConditionEvaluator) MergeEngine {
	if conditions == nil {
		conditions = NewConditionEvaluator()
	}
	return MergeEngine{conditions: conditions}
}

func (e MergeEngine) Merge(record types.RecordAttributeSet, extracted types.ExtractedData, configs []types.ExtractionFieldConfig) types.MergeResult {
	resolver := NewKeyResolver(configs)

	result := types.MergeResult{
		UpdatePayload: types.RecordPayload{Attributes: map[string]any{}},
		UpdatedKeys:   []string{},
		SkippedKeys:   []string{},
		SkipReasons:   map[string]string{},
	}
	skip := func(key string, reason string) {
		result.SkippedKeys = append(result.SkippedKeys, key)
		result.SkipReasons[key] = reason
	}

	for _, field := range extracted {
		key := field.Key
		if field.Value.IsNoExtraction() {
			skip(key, SkipEmptyValue)
			continue
		}

		cfg, ok := resolver.Resolve(key)
		if !ok {
			skip(key, SkipNoConfig)
			continue
		}

		kind := fieldmeta.TargetKindOf(cfg)
		var current any
		var attr string
		if kind == types.TargetKindStandard {
			attr = fieldmeta.NativeAttributeName(cfg.TargetKey)
			current, _ = record.Attribute(attr)
		} else {
			current, _ = record.CustomFieldValue(cfg.TargetKey)
		}

		if reason, ok := evaluatePolicy(cfg.OverwritePolicy, current); !ok {
			skip(key, reason)
			continue
		}

		incoming := field.Value.Native()
		allowed, err := e.conditions.Allows(cfg.ConditionExpr, key, current, incoming)
		if err != nil {
			skip(key, SkipConditionInvalid)
			continue
		}
		if !allowed {
			skip(key, SkipConditionFalse)
			continue
		}

		switch {
		case kind == types.TargetKindStandard && fieldmeta.IsTagsAttribute(attr):
			base := current
			if pending, ok := result.UpdatePayload.Attributes[attr]; ok {
				base = pending
			}
			result.UpdatePayload.Attributes[attr] = UnionTags(base, incoming)
		case kind == types.TargetKindStandard:
			result.UpdatePayload.Attributes[attr] = incoming
		default:
			result.UpdatePayload.CustomFields = setCustomField(result.UpdatePayload.CustomFields, cfg.TargetKey, incoming)
		}
		result.UpdatedKeys = append(result.UpdatedKeys, key)
	}
	return result
}

// setCustomField appends id=value, replacing an earlier entry for the same id.
func setCustomField(fields []types.CustomFieldValue, id string, value any) []types.CustomFieldValue {
	for i := range fields {
		if fields[i].ID == id {
			fields[i].Value = value
			return fields
		}
	}
	return append(fields, types.CustomFieldValue{ID: id, Value: value})
}

// evaluatePolicy returns the skip reason when the policy forbids the write.
// Unset or unknown policies behave as always.
func evaluatePolicy(policy types.OverwritePolicy, current any) (string, bool) {
	switch types.NormalizeOverwritePolicy(string(policy)) {
	case types.OverwriteNever:
		return SkipPolicyNever, false
	case types.OverwriteIfEmpty:
		if IsEmptyValue(current) {
			return "", true
		}
		return SkipPolicyNotEmpty, false
	default:
		return "", true
	}
}

// IsEmptyValue is the if_empty predicate: nil, "", or an empty list.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// UnionTags merges incoming tags into existing ones without duplicates.
// Existing tags keep their order; new tags follow in arrival order.
func UnionTags(existing any, incoming any) []any {
	out := []any{}
	seen := map[string]struct{}{}
	add := func(tag any) {
		s := tagString(tag)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, tag := range asList(existing) {
		add(tag)
	}
	for _, tag := range asList(incoming) {
		add(tag)
	}
	return out
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, 0, len(t))
		for _, s := range t {
			out = append(out, s)
		}
		return out
	default:
		return []any{t}
	}
}

func tagString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
