package fieldmeta

import (
	"sort"
	"strings"
)

// FieldType describes how a CRM custom-field data type is presented and
// extracted locally.
type FieldType struct {
	DataType     string `json:"data_type"`
	SemanticType string `json:"semantic_type"`
	Label        string `json:"label"`
	Icon         string `json:"icon"`
	Choice       bool   `json:"choice"`
	File         bool   `json:"file"`
}

var fieldTypes = []FieldType{
	{DataType: "TEXT", SemanticType: "text", Label: "Single line", Icon: "type"},
	{DataType: "LARGE_TEXT", SemanticType: "textarea", Label: "Multi line", Icon: "align-left"},
	{DataType: "NUMERICAL", SemanticType: "number", Label: "Number", Icon: "hash"},
	{DataType: "PHONE", SemanticType: "phone", Label: "Phone", Icon: "phone"},
	{DataType: "MONETORY", SemanticType: "currency", Label: "Monetary", Icon: "dollar-sign"},
	{DataType: "EMAIL", SemanticType: "email", Label: "Email", Icon: "mail"},
	{DataType: "DATE", SemanticType: "date", Label: "Date picker", Icon: "calendar"},
	{DataType: "CHECKBOX", SemanticType: "checkbox", Label: "Checkbox", Icon: "check-square", Choice: true},
	{DataType: "SINGLE_OPTIONS", SemanticType: "select", Label: "Dropdown (single)", Icon: "chevron-down", Choice: true},
	{DataType: "MULTIPLE_OPTIONS", SemanticType: "multiselect", Label: "Dropdown (multiple)", Icon: "list", Choice: true},
	{DataType: "RADIO", SemanticType: "radio", Label: "Radio select", Icon: "circle", Choice: true},
	{DataType: "TEXTBOX_LIST", SemanticType: "list", Label: "Text box list", Icon: "list-ordered", Choice: true},
	{DataType: "FILE_UPLOAD", SemanticType: "file", Label: "File upload", Icon: "paperclip", File: true},
	{DataType: "SIGNATURE", SemanticType: "file", Label: "Signature", Icon: "pen-tool"},
}

var fieldTypeByDataType = func() map[string]FieldType {
	out := make(map[string]FieldType, len(fieldTypes))
	for _, ft := range fieldTypes {
		out[ft.DataType] = ft
	}
	return out
}()

func normalizeDataType(dataType string) string {
	return strings.ToUpper(strings.TrimSpace(dataType))
}

func ListFieldTypes() []FieldType {
	out := append([]FieldType(nil), fieldTypes...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DataType < out[j].DataType
	})
	return out
}

func LookupFieldType(dataType string) (FieldType, bool) {
	ft, ok := fieldTypeByDataType[normalizeDataType(dataType)]
	return ft, ok
}

// SemanticType falls back to "text" for data types the catalog does not know.
func SemanticType(dataType string) string {
	if ft, ok := LookupFieldType(dataType); ok {
		return ft.SemanticType
	}
	return "text"
}

func IsChoiceType(dataType string) bool {
	ft, ok := LookupFieldType(dataType)
	return ok && ft.Choice
}

func IsFileType(dataType string) bool {
	ft, ok := LookupFieldType(dataType)
	return ok && ft.File
}

// PlaceholderOptions is substituted when a choice field has to be recreated
// from a snapshot whose options were lost.
func PlaceholderOptions(dataType string) []string {
	switch normalizeDataType(dataType) {
	case "CHECKBOX":
		return []string{"Yes"}
	case "TEXTBOX_LIST":
		return []string{"Value 1"}
	case "MULTIPLE_OPTIONS":
		return []string{"Option 1", "Option 2", "Option 3"}
	case "SINGLE_OPTIONS", "RADIO":
		return []string{"Option 1", "Option 2"}
	default:
		return nil
	}
}

var defaultAcceptedFormats = []string{".pdf", ".docx", ".doc", ".jpg", ".jpeg", ".png", ".gif", ".csv", ".xlsx", ".xls"}

const DefaultMaxFileLimit = 1

func DefaultAcceptedFormats() []string {
	return append([]string(nil), defaultAcceptedFormats...)
}
