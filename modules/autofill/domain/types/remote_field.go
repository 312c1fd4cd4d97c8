package types

import "encoding/json"

// RemoteFieldSnapshot is a point-in-time copy of a CRM custom-field definition.
// Option lists have drifted between names across API versions, so all three
// known spellings are kept as received.
type RemoteFieldSnapshot struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	DataType       string  `json:"dataType"`
	FieldKey       string  `json:"fieldKey,omitempty"`
	ParentID       *string `json:"parentId,omitempty"`
	Position       *int    `json:"position,omitempty"`
	Placeholder    string  `json:"placeholder,omitempty"`
	Model          string  `json:"model,omitempty"`
	ObjectID       string  `json:"objectId,omitempty"`
	ObjectSchemaID string  `json:"objectSchemaId,omitempty"`

	PicklistOptions    []any `json:"picklistOptions,omitempty"`
	Options            []any `json:"options,omitempty"`
	TextBoxListOptions []any `json:"textBoxListOptions,omitempty"`

	AcceptedFormat []string `json:"acceptedFormat,omitempty"`
	MaxFileLimit   *int     `json:"maxFileLimit,omitempty"`
}

func (s RemoteFieldSnapshot) Clone() RemoteFieldSnapshot {
	if s.ParentID != nil {
		v := *s.ParentID
		s.ParentID = &v
	}
	if s.Position != nil {
		v := *s.Position
		s.Position = &v
	}
	if s.MaxFileLimit != nil {
		v := *s.MaxFileLimit
		s.MaxFileLimit = &v
	}
	s.PicklistOptions = cloneAnySlice(s.PicklistOptions)
	s.Options = cloneAnySlice(s.Options)
	s.TextBoxListOptions = cloneAnySlice(s.TextBoxListOptions)
	if s.AcceptedFormat != nil {
		s.AcceptedFormat = append([]string(nil), s.AcceptedFormat...)
	}
	return s
}

func cloneAnySlice(in []any) []any {
	if in == nil {
		return nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return append([]any(nil), in...)
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return append([]any(nil), in...)
	}
	return out
}

// CreateFieldPayload is the body of a custom-field create call. ParentID is
// always serialized; nil means "no parent folder" and is sent as null.
type CreateFieldPayload struct {
	Name           string   `json:"name"`
	DataType       string   `json:"dataType"`
	ParentID       *string  `json:"parentId"`
	Position       *int     `json:"position,omitempty"`
	Placeholder    string   `json:"placeholder,omitempty"`
	Model          string   `json:"model,omitempty"`
	ObjectID       string   `json:"objectId,omitempty"`
	ObjectSchemaID string   `json:"objectSchemaId,omitempty"`
	Options        []string `json:"options,omitempty"`
	AcceptedFormat []string `json:"acceptedFormat,omitempty"`
	MaxFileLimit   *int     `json:"maxFileLimit,omitempty"`
}

type SyncResult struct {
	Updated []ExtractionFieldConfig `json:"updated"`
	Renamed []string                `json:"renamed"`
	Missing []string                `json:"missing"`
}
