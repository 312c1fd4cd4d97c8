package services

import (
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/fieldmeta"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

// ErrNothingToWrite is the sanitizer's terminal outcome when no writable
// attribute survives. Callers treat it as success without a store call.
var ErrNothingToWrite = errors.New("nothing_to_write")

type PayloadBuilder struct {
	logger *slog.Logger
}

func NewPayloadBuilder(logger *slog.Logger) PayloadBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return PayloadBuilder{logger: logger}
}

// Sanitize strips read-only attributes, keeps whitelisted standard
// attributes, and drops custom entries without an id. Repeated custom ids
// collapse to the last value. The input payload is not modified.
func (b PayloadBuilder) Sanitize(payload types.RecordPayload) (types.RecordPayload, error) {
	out := types.RecordPayload{Attributes: map[string]any{}}

	names := make([]string, 0, len(payload.Attributes))
	for name := range payload.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	var dropped []string
	for _, name := range names {
		switch {
		case fieldmeta.IsReadOnlyAttribute(name):
			dropped = append(dropped, name)
		case !fieldmeta.IsWritableAttribute(name):
			dropped = append(dropped, name)
		case fieldmeta.IsTagsAttribute(name):
			out.Attributes[name] = UnionTags(nil, payload.Attributes[name])
		default:
			out.Attributes[name] = payload.Attributes[name]
		}
	}
	if len(dropped) > 0 {
		b.logger.Warn("autofill: dropped non-writable attributes", "attributes", dropped)
	}

	index := map[string]int{}
	for _, cf := range payload.CustomFields {
		id := strings.TrimSpace(cf.ID)
		if id == "" {
			b.logger.Warn("autofill: dropped custom field entry without id")
			continue
		}
		if i, ok := index[id]; ok {
			out.CustomFields[i].Value = cf.Value
			continue
		}
		index[id] = len(out.CustomFields)
		out.CustomFields = append(out.CustomFields, types.CustomFieldValue{ID: id, Value: cf.Value})
	}

	if out.IsEmpty() {
		return types.RecordPayload{}, ErrNothingToWrite
	}
	return out, nil
}
