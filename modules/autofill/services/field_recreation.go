package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/fieldmeta"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
	"github.com/jacksonlee411/contact-autofill/pkg/httperr"
	"golang.org/x/text/unicode/norm"
)

const (
	errFieldNameRequired     = "FIELD_NAME_REQUIRED"
	errFieldDataTypeRequired = "FIELD_DATA_TYPE_REQUIRED"
	errFieldOptionsRequired  = "FIELD_OPTIONS_REQUIRED"
	errFieldOptionInvalid    = "FIELD_OPTION_INVALID"
	errFieldOptionDuplicate  = "FIELD_OPTION_DUPLICATE"
	errFieldFileLimitInvalid = "FIELD_MAX_FILE_LIMIT_INVALID"
)

// optionObjectKeys is the order in which an option object's label is looked up.
var optionObjectKeys = []string{"label", "name", "value", "key"}

// FieldRecreation rebuilds a custom-field create payload from a stored snapshot.
type FieldRecreation struct {
	logger *slog.Logger
}

func NewFieldRecreation(logger *slog.Logger) FieldRecreation {
	if logger == nil {
		logger = slog.Default()
	}
	return FieldRecreation{logger: logger}
}

func (r FieldRecreation) Recreate(snapshot types.RemoteFieldSnapshot) (types.CreateFieldPayload, error) {
	name := strings.TrimSpace(snapshot.Name)
	if name == "" {
		return types.CreateFieldPayload{}, httperr.NewValidation(errFieldNameRequired, "snapshot name is required")
	}
	dataType := strings.TrimSpace(snapshot.DataType)
	if dataType == "" {
		return types.CreateFieldPayload{}, httperr.NewValidation(errFieldDataTypeRequired, "snapshot dataType is required")
	}

	payload := types.CreateFieldPayload{
		Name:           snapshot.Name,
		DataType:       snapshot.DataType,
		Placeholder:    snapshot.Placeholder,
		Model:          snapshot.Model,
		ObjectID:       snapshot.ObjectID,
		ObjectSchemaID: snapshot.ObjectSchemaID,
	}
	if snapshot.ParentID != nil && strings.TrimSpace(*snapshot.ParentID) != "" {
		parent := *snapshot.ParentID
		payload.ParentID = &parent
	}
	if snapshot.Position != nil {
		pos := *snapshot.Position
		payload.Position = &pos
	}

	if fieldmeta.IsChoiceType(dataType) {
		options, duplicates := normalizeOptions(rawOptions(snapshot))
		if len(duplicates) > 0 {
			r.logger.Warn("autofill: collapsed duplicate options", "field", snapshot.ID, "options", duplicates)
		}
		if len(options) == 0 {
			options = fieldmeta.PlaceholderOptions(dataType)
			r.logger.Warn("autofill: snapshot has no options, using placeholders", "field", snapshot.ID, "data_type", dataType)
		}
		payload.Options = options
	}

	if fieldmeta.IsFileType(dataType) {
		payload.AcceptedFormat = append([]string(nil), snapshot.AcceptedFormat...)
		if len(payload.AcceptedFormat) == 0 {
			payload.AcceptedFormat = fieldmeta.DefaultAcceptedFormats()
		}
		limit := fieldmeta.DefaultMaxFileLimit
		if snapshot.MaxFileLimit != nil && *snapshot.MaxFileLimit > 0 {
			limit = *snapshot.MaxFileLimit
		}
		payload.MaxFileLimit = &limit
	}

	if err := ValidateCreatePayload(payload); err != nil {
		return types.CreateFieldPayload{}, err
	}
	return payload, nil
}

// ValidateCreatePayload is the gate run before any create call.
func ValidateCreatePayload(p types.CreateFieldPayload) error {
	if strings.TrimSpace(p.Name) == "" {
		return httperr.NewValidation(errFieldNameRequired, "name is required")
	}
	if strings.TrimSpace(p.DataType) == "" {
		return httperr.NewValidation(errFieldDataTypeRequired, "dataType is required")
	}
	if fieldmeta.IsChoiceType(p.DataType) {
		if len(p.Options) == 0 {
			return httperr.NewValidation(errFieldOptionsRequired, "choice fields need at least one option")
		}
		seen := make(map[string]struct{}, len(p.Options))
		for i, opt := range p.Options {
			if strings.TrimSpace(opt) == "" {
				return httperr.NewValidationDetails(errFieldOptionInvalid, "option must be a non-empty string", map[string]any{"index": i})
			}
			if _, ok := seen[opt]; ok {
				return httperr.NewValidationDetails(errFieldOptionDuplicate, "options must be unique", map[string]any{"option": opt})
			}
			seen[opt] = struct{}{}
		}
	}
	if p.MaxFileLimit != nil && *p.MaxFileLimit < 1 {
		return httperr.NewValidation(errFieldFileLimitInvalid, "maxFileLimit must be positive")
	}
	return nil
}

// rawOptions picks the first non-empty option list in priority order.
func rawOptions(s types.RemoteFieldSnapshot) []any {
	for _, list := range [][]any{s.PicklistOptions, s.Options, s.TextBoxListOptions} {
		if len(list) > 0 {
			return list
		}
	}
	return nil
}

func normalizeOptions(raw []any) ([]string, []string) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	var duplicates []string
	for _, item := range raw {
		label := optionLabel(item)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			duplicates = append(duplicates, label)
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out, duplicates
}

func optionLabel(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return norm.NFC.String(strings.TrimSpace(t))
	case json.Number:
		return t.String()
	case float64, int, int64, bool:
		return fmt.Sprint(t)
	case map[string]any:
		for _, key := range optionObjectKeys {
			if label := optionLabel(t[key]); label != "" {
				return label
			}
		}
		return ""
	default:
		return ""
	}
}
