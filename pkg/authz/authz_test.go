package authz

import (
	"os"
	"path/filepath"
	"testing"
)

const flatModel = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.dom == p.dom && r.obj == p.obj && r.act == p.act
`

func writeFiles(t *testing.T, model string, policy string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.conf")
	policyPath := filepath.Join(dir, "policy.csv")
	if err := os.WriteFile(modelPath, []byte(model), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policyPath, []byte(policy), 0o644); err != nil {
		t.Fatal(err)
	}
	return modelPath, policyPath
}

func TestModeFromEnv_Default(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeEnforce {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_Shadow(t *testing.T) {
	t.Setenv("AUTHZ_MODE", " Shadow ")
	m, err := ModeFromEnv()
	if err != nil || m != ModeShadow {
		t.Fatalf("mode=%q err=%v", m, err)
	}
}

func TestModeFromEnv_DisabledRequiresUnsafe(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "disabled")
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "1")
	m, err := ModeFromEnv()
	if err != nil || m != ModeDisabled {
		t.Fatalf("mode=%q err=%v", m, err)
	}
}

func TestParseMode_Invalid(t *testing.T) {
	if _, err := ParseMode("nope", true); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewAuthorizer_AndAuthorize(t *testing.T) {
	model, policy := writeFiles(t, flatModel, "p, role:autofill-viewer, loc-1, autofill.configurations, read\n")

	a, err := NewAuthorizer(model, policy, ModeEnforce)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if a.Mode() != ModeEnforce {
		t.Fatalf("mode=%q", a.Mode())
	}

	allowed, enforced, err := a.Authorize("role:autofill-viewer", "loc-1", ObjectAutofillConfigurations, ActionRead)
	if err != nil || !enforced || !allowed {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}
	allowed, enforced, err = a.Authorize("role:autofill-viewer", "loc-1", ObjectAutofillConfigurations, ActionAdmin)
	if err != nil || !enforced || allowed {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}

	aShadow, err := NewAuthorizer(model, policy, ModeShadow)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, enforced, err = aShadow.Authorize("role:autofill-viewer", "loc-1", ObjectAutofillConfigurations, ActionAdmin)
	if err != nil || enforced || allowed {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}

	aDisabled, err := NewAuthorizer(model, policy, ModeDisabled)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, enforced, err = aDisabled.Authorize("role:anonymous", "loc-1", ObjectAutofillMerge, ActionAdmin)
	if err != nil || enforced || !allowed {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}
}

func TestNewAuthorizer_RepoPolicy(t *testing.T) {
	a, err := NewAuthorizer("", "", ModeEnforce)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	cases := []struct {
		role   string
		domain string
		object string
		action string
		want   bool
	}{
		{RoleAutofillViewer, "loc-1", ObjectAutofillConfigurations, ActionRead, true},
		{RoleAutofillViewer, "loc-1", ObjectAutofillConfigurations, ActionAdmin, false},
		{RoleAutofillViewer, DomainGlobal, ObjectAutofillMerge, ActionAdmin, false},
		{RoleAutofillAdmin, "loc-1", ObjectAutofillConfigurations, ActionRead, true},
		{RoleAutofillAdmin, "loc-1", ObjectAutofillFields, ActionAdmin, true},
		{RoleAutofillAdmin, DomainGlobal, ObjectAutofillMerge, ActionAdmin, true},
		{RoleExtractor, DomainGlobal, ObjectAutofillMerge, ActionAdmin, true},
		{RoleExtractor, "loc-1", ObjectAutofillConfigurations, ActionRead, false},
		{RoleAnonymous, DomainGlobal, ObjectAutofillFieldTypes, ActionRead, false},
	}
	for _, tc := range cases {
		allowed, _, err := a.Authorize(SubjectFromRoleSlug(tc.role), tc.domain, tc.object, tc.action)
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if allowed != tc.want {
			t.Fatalf("role=%s dom=%s obj=%s act=%s allowed=%v", tc.role, tc.domain, tc.object, tc.action, allowed)
		}
	}
}

func TestNewAuthorizer_Error(t *testing.T) {
	dir := t.TempDir()
	invalidModel := filepath.Join(dir, "invalid.conf")
	if err := os.WriteFile(invalidModel, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewAuthorizer(invalidModel, "nope-policy.csv", ModeEnforce); err == nil {
		t.Fatal("expected error")
	}

	model, _ := writeFiles(t, flatModel, "")
	if _, err := NewAuthorizer(model, filepath.Join(dir, "missing-policy.csv"), ModeEnforce); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolvePath_NotFound(t *testing.T) {
	if _, err := resolvePath("", "config/access/definitely-missing.conf"); err == nil {
		t.Fatal("expected error")
	}
	if got, err := resolvePath("explicit.conf", DefaultModelPath); err != nil || got != "explicit.conf" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}

func TestSubjectFromRoleSlug(t *testing.T) {
	if got := SubjectFromRoleSlug(""); got != "role:anonymous" {
		t.Fatalf("got=%q", got)
	}
	if got := SubjectFromRoleSlug("Autofill-Admin"); got != "role:autofill-admin" {
		t.Fatalf("got=%q", got)
	}
}

func TestDomainFromLocationID(t *testing.T) {
	if got := DomainFromLocationID(" LOC-1 "); got != "loc-1" {
		t.Fatalf("got=%q", got)
	}
	if got := DomainFromLocationID(" "); got != DomainGlobal {
		t.Fatalf("got=%q", got)
	}
}

func TestAuthorize_UnknownMode(t *testing.T) {
	a := &Authorizer{mode: Mode("nope")}
	if _, _, err := a.Authorize("role:x", "d", "o", "a"); err == nil {
		t.Fatal("expected error")
	}
}
