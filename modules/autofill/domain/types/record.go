package types

import (
	"bytes"
	"encoding/json"
	"errors"
)

type CustomFieldValue struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// RecordAttributeSet is a CRM contact as fetched for one merge. Attributes are
// keyed by the store's native names (firstName, tags, ...).
type RecordAttributeSet struct {
	ID           string
	Attributes   map[string]any
	CustomFields []CustomFieldValue
}

func (r RecordAttributeSet) Attribute(name string) (any, bool) {
	v, ok := r.Attributes[name]
	return v, ok
}

func (r RecordAttributeSet) CustomFieldValue(id string) (any, bool) {
	for _, cf := range r.CustomFields {
		if cf.ID == id {
			return cf.Value, true
		}
	}
	return nil, false
}

func (r *RecordAttributeSet) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("record: json object is required")
	}

	out := RecordAttributeSet{Attributes: make(map[string]any, len(raw))}
	for key, value := range raw {
		switch key {
		case "id":
			out.ID, _ = value.(string)
			out.Attributes[key] = value
		case "customFields", "customField":
			items, _ := value.([]any)
			for _, item := range items {
				obj, ok := item.(map[string]any)
				if !ok {
					continue
				}
				id, _ := obj["id"].(string)
				if id == "" {
					continue
				}
				v, ok := obj["value"]
				if !ok {
					v = obj["field_value"]
				}
				out.CustomFields = append(out.CustomFields, CustomFieldValue{ID: id, Value: v})
			}
		default:
			out.Attributes[key] = value
		}
	}
	*r = out
	return nil
}

// RecordPayload is an update for one record: standard attributes by native
// name plus custom-field entries.
type RecordPayload struct {
	Attributes   map[string]any
	CustomFields []CustomFieldValue
}

func (p RecordPayload) IsEmpty() bool {
	return len(p.Attributes) == 0 && len(p.CustomFields) == 0
}

func (p RecordPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Attributes)+1)
	for k, v := range p.Attributes {
		out[k] = v
	}
	if len(p.CustomFields) > 0 {
		out["customFields"] = p.CustomFields
	}
	return json.Marshal(out)
}

type MergeResult struct {
	UpdatePayload RecordPayload     `json:"update_payload"`
	UpdatedKeys   []string          `json:"updated_keys"`
	SkippedKeys   []string          `json:"skipped_keys"`
	SkipReasons   map[string]string `json:"skip_reasons"`
}
