package fieldmeta

import (
	"sort"
	"strings"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

// StandardNamespace prefixes standard attribute paths (contact.firstName).
const StandardNamespace = "contact"

const TagsAttribute = "tags"

// nativeNames maps snake_case attribute names some extractors emit onto the
// record store's native capitalization. Unlisted names pass through unchanged.
var nativeNames = map[string]string{
	"first_name":    "firstName",
	"last_name":     "lastName",
	"full_name":     "name",
	"date_of_birth": "dateOfBirth",
	"phone_raw":     "phone",
	"full_address":  "address1",
	"address_line1": "address1",
	"company_name":  "companyName",
	"postal_code":   "postalCode",
	"tag_list":      "tags",
}

var writableAttributes = map[string]struct{}{
	"firstName":   {},
	"lastName":    {},
	"name":        {},
	"email":       {},
	"phone":       {},
	"companyName": {},
	"address1":    {},
	"city":        {},
	"state":       {},
	"postalCode":  {},
	"country":     {},
	"website":     {},
	"timezone":    {},
	"dateOfBirth": {},
	"gender":      {},
	"source":      {},
	"dnd":         {},
	"assignedTo":  {},
	"tags":        {},
}

var readOnlyAttributes = []string{
	"id",
	"locationId",
	"dateAdded",
	"dateUpdated",
	"lastActivity",
}

// ClassifyTargetKey is the single classification rule for target keys: a
// dotted path is a standard attribute, anything else is an opaque custom-field id.
func ClassifyTargetKey(targetKey string) types.TargetKind {
	if strings.Contains(strings.TrimSpace(targetKey), ".") {
		return types.TargetKindStandard
	}
	return types.TargetKindCustom
}

// TargetKindOf prefers the kind stored on the config and classifies legacy
// rows that predate it.
func TargetKindOf(cfg types.ExtractionFieldConfig) types.TargetKind {
	switch cfg.TargetKind {
	case types.TargetKindStandard, types.TargetKindCustom:
		return cfg.TargetKind
	default:
		return ClassifyTargetKey(cfg.TargetKey)
	}
}

// NativeAttributeName turns a standard target key (contact.first_name) into
// the record attribute it addresses (firstName).
func NativeAttributeName(targetKey string) string {
	key := strings.TrimSpace(targetKey)
	if i := strings.LastIndex(key, "."); i >= 0 {
		key = key[i+1:]
	}
	if native, ok := nativeNames[key]; ok {
		return native
	}
	return key
}

func NamespacedKey(key string) string {
	return StandardNamespace + "." + key
}

func IsTagsAttribute(nativeName string) bool {
	return nativeName == TagsAttribute
}

func IsWritableAttribute(nativeName string) bool {
	_, ok := writableAttributes[nativeName]
	return ok
}

func IsReadOnlyAttribute(nativeName string) bool {
	for _, name := range readOnlyAttributes {
		if name == nativeName {
			return true
		}
	}
	return false
}

func ReadOnlyAttributes() []string {
	return append([]string(nil), readOnlyAttributes...)
}

func WritableAttributes() []string {
	out := make([]string, 0, len(writableAttributes))
	for name := range writableAttributes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
