package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/jacksonlee411/contact-autofill/internal/routing"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/infrastructure/persistence"
	"github.com/jacksonlee411/contact-autofill/pkg/authz"
)

type stubAuthorizer struct {
	allowed  bool
	enforced bool
	err      error

	gotSubject string
	gotDomain  string
	gotObject  string
	gotAction  string
}

func (a *stubAuthorizer) Authorize(subject string, domain string, object string, action string) (bool, bool, error) {
	a.gotSubject, a.gotDomain, a.gotObject, a.gotAction = subject, domain, object, action
	return a.allowed, a.enforced, a.err
}

func mustTestClassifier(t *testing.T) *routing.Classifier {
	t.Helper()

	c, err := routing.NewClassifier(routing.Allowlist{Version: 1, Entrypoints: map[string]routing.Entrypoint{
		"server": {Routes: []routing.Route{
			{Path: "/health", Methods: []string{"GET"}, RouteClass: "ops"},
			{Path: "/autofill/api/configurations/{configuration_id}", Methods: []string{"GET"}, RouteClass: "internal_api"},
		}},
	}}, "server")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func serveAuthz(t *testing.T, a authorizer, resolve domainResolver, method string, path string, role string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	h := withPrincipalFromHeaders(withAuthz(mustTestClassifier(t), a, resolve, nil, okHandler(&called)))
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		req.Header.Set(headerActorRole, role)
		req.Header.Set(headerActorID, "actor-1")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func TestWithAuthz_SkipsWhenNoRequirement(t *testing.T) {
	a := &stubAuthorizer{allowed: false, enforced: true}
	for _, path := range []string{"/health", "/somewhere/else"} {
		rec, called := serveAuthz(t, a, nil, http.MethodGet, path, "")
		if rec.Code != http.StatusOK || !called {
			t.Fatalf("path=%s status=%d called=%v", path, rec.Code, called)
		}
	}
}

func TestWithAuthz_AnonymousRole(t *testing.T) {
	a := &stubAuthorizer{allowed: true, enforced: true}
	rec, _ := serveAuthz(t, a, nil, http.MethodGet, "/autofill/api/configurations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if a.gotSubject != "role:anonymous" || a.gotDomain != authz.DomainGlobal {
		t.Fatalf("subject=%q domain=%q", a.gotSubject, a.gotDomain)
	}
}

func TestWithAuthz_ForbiddenWhenEnforced(t *testing.T) {
	a := &stubAuthorizer{allowed: false, enforced: true}
	rec, called := serveAuthz(t, a, nil, http.MethodPost, "/autofill/api/merge", "autofill-viewer")
	if rec.Code != http.StatusForbidden || called {
		t.Fatalf("status=%d called=%v", rec.Code, called)
	}
	if a.gotObject != authz.ObjectAutofillMerge || a.gotAction != authz.ActionAdmin || a.gotSubject != "role:autofill-viewer" {
		t.Fatalf("a=%+v", a)
	}
}

func TestWithAuthz_AllowsWhenNotEnforced(t *testing.T) {
	a := &stubAuthorizer{allowed: false, enforced: false}
	rec, called := serveAuthz(t, a, nil, http.MethodDelete, "/autofill/api/configurations/cfg-1", "autofill-viewer")
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("status=%d called=%v", rec.Code, called)
	}
}

func TestWithAuthz_AuthzError(t *testing.T) {
	a := &stubAuthorizer{err: os.ErrInvalid}
	rec, called := serveAuthz(t, a, nil, http.MethodGet, "/autofill/api/field-types", "extractor")
	if rec.Code != http.StatusInternalServerError || called {
		t.Fatalf("status=%d called=%v", rec.Code, called)
	}
}

func TestWithAuthz_DomainFromConfiguration(t *testing.T) {
	a := &stubAuthorizer{allowed: true, enforced: true}
	resolve := func(_ context.Context, id string) (string, error) {
		if id != "cfg-1" {
			t.Fatalf("id=%q", id)
		}
		return "loc-7", nil
	}
	rec, _ := serveAuthz(t, a, resolve, http.MethodPost, "/autofill/api/configurations/cfg-1/fields/f-1:restore", "autofill-admin")
	if rec.Code != http.StatusOK || a.gotDomain != "loc-7" || a.gotObject != authz.ObjectAutofillFields {
		t.Fatalf("status=%d a=%+v", rec.Code, a)
	}

	failing := func(context.Context, string) (string, error) { return "", errors.New("db down") }
	rec, called := serveAuthz(t, a, failing, http.MethodGet, "/autofill/api/configurations/cfg-1", "autofill-admin")
	if rec.Code != http.StatusInternalServerError || called {
		t.Fatalf("status=%d called=%v", rec.Code, called)
	}
}

func TestConfigStoreDomainResolver(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewConfigMemoryStore()
	if _, err := store.CreateConfiguration(ctx, types.Configuration{ID: "cfg-1", LocationID: " LOC-1 "}); err != nil {
		t.Fatal(err)
	}
	resolve := configStoreDomainResolver(store)

	if d, err := resolve(ctx, "cfg-1"); err != nil || d != "loc-1" {
		t.Fatalf("d=%q err=%v", d, err)
	}
	if d, err := resolve(ctx, "missing"); err != nil || d != authz.DomainGlobal {
		t.Fatalf("d=%q err=%v", d, err)
	}
}

func TestAuthzRequirementForRoute(t *testing.T) {
	cases := []struct {
		method string
		path   string
		object string
		action string
		ok     bool
	}{
		{http.MethodPost, "/autofill/api/merge", authz.ObjectAutofillMerge, authz.ActionAdmin, true},
		{http.MethodGet, "/autofill/api/merge", "", "", false},
		{http.MethodGet, "/autofill/api/field-types", authz.ObjectAutofillFieldTypes, authz.ActionRead, true},
		{http.MethodGet, "/autofill/api/configurations", authz.ObjectAutofillConfigurations, authz.ActionRead, true},
		{http.MethodPost, "/autofill/api/configurations", authz.ObjectAutofillConfigurations, authz.ActionAdmin, true},
		{http.MethodPut, "/autofill/api/configurations/c1", authz.ObjectAutofillConfigurations, authz.ActionAdmin, true},
		{http.MethodDelete, "/autofill/api/configurations/c1/fields/f1", authz.ObjectAutofillConfigurations, authz.ActionAdmin, true},
		{http.MethodGet, "/autofill/api/configurations/c1/fields", authz.ObjectAutofillConfigurations, authz.ActionRead, true},
		{http.MethodPost, "/autofill/api/configurations/c1/fields:sync", authz.ObjectAutofillFields, authz.ActionAdmin, true},
		{http.MethodPost, "/autofill/api/configurations/c1/fields/f1:restore", authz.ObjectAutofillFields, authz.ActionAdmin, true},
		{http.MethodGet, "/autofill/api/configurations/c1/fields:sync", "", "", false},
		{http.MethodPatch, "/autofill/api/configurations/c1", "", "", false},
		{http.MethodGet, "/health", "", "", false},
	}
	for _, tc := range cases {
		object, action, ok := authzRequirementForRoute(tc.method, tc.path)
		if object != tc.object || action != tc.action || ok != tc.ok {
			t.Fatalf("%s %s: object=%q action=%q ok=%v", tc.method, tc.path, object, action, ok)
		}
	}
}

func TestConfigurationIDFromPath(t *testing.T) {
	cases := map[string]string{
		"/autofill/api/configurations/c1":                   "c1",
		"/autofill/api/configurations/c1/fields":            "c1",
		"/autofill/api/configurations/c1/fields:sync":       "c1",
		"/autofill/api/configurations/c1/fields/f1:restore": "c1",
		"/autofill/api/configurations/":                     "",
		"/autofill/api/configurations":                      "",
		"/autofill/api/merge":                               "",
	}
	for path, want := range cases {
		got, ok := configurationIDFromPath(path)
		if got != want || ok != (want != "") {
			t.Fatalf("path=%s got=%q ok=%v", path, got, ok)
		}
	}
}

func TestLoadAuthorizer(t *testing.T) {
	if _, err := loadAuthorizer(AuthzConfig{Mode: "disabled"}); err == nil {
		t.Fatal("expected error")
	}
	a, err := loadAuthorizer(AuthzConfig{Mode: "disabled", UnsafeAllowDisabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if a.Mode() != authz.ModeDisabled {
		t.Fatalf("mode=%q", a.Mode())
	}
}
