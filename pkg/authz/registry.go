package authz

const (
	RoleAutofillAdmin  = "autofill-admin"
	RoleAutofillViewer = "autofill-viewer"
	RoleExtractor      = "extractor"
	RoleAnonymous      = "anonymous"
)

const (
	ActionRead  = "read"
	ActionAdmin = "admin"
)

const DomainGlobal = "global"

const (
	ObjectAutofillConfigurations = "autofill.configurations"
	ObjectAutofillFields         = "autofill.fields"
	ObjectAutofillFieldTypes     = "autofill.field-types"
	ObjectAutofillMerge          = "autofill.merge"
)
