package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/infrastructure/persistence"
)

// crmBackend is a minimal CRM used through the real HTTP client.
type crmBackend struct {
	mu     sync.Mutex
	puts   []map[string]any
	server *httptest.Server
}

func newCRMBackend(t *testing.T) *crmBackend {
	t.Helper()
	b := &crmBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /contacts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "rec-1" {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"contact":{"id":"rec-1","firstName":"","city":"Oslo","customFields":[]}}`)
	})
	mux.HandleFunc("PUT /contacts/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.puts = append(b.puts, body)
		b.mu.Unlock()
		_, _ = io.WriteString(w, `{"contact":{}}`)
	})
	mux.HandleFunc("GET /locations/{loc}/customFields", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"customFields":[]}`)
	})
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func testConfig(t *testing.T, crmURL string) Config {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	root := filepath.Clean(filepath.Join(wd, "..", ".."))
	cfg := defaultConfig()
	cfg.ConfigStoreDSN = memoryStoreDSN
	cfg.AllowlistPath = filepath.Join(root, "config", "routing", "allowlist.yaml")
	cfg.Authz.ModelPath = filepath.Join(root, "config", "access", "model.conf")
	cfg.Authz.PolicyPath = filepath.Join(root, "config", "access", "policy.csv")
	cfg.CRM.BaseURL = crmURL
	cfg.CRM.RateLimitRPS = 0
	return cfg
}

func newTestHandler(t *testing.T, cfg Config, opts HandlerOptions) http.Handler {
	t.Helper()
	h, closeFn, err := NewHandler(context.Background(), cfg, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(closeFn)
	return h
}

func do(t *testing.T, h http.Handler, method string, path string, role string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req.Header.Set(headerActorRole, role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("body=%s err=%v", rec.Body.String(), err)
	}
	if !env.Success {
		t.Fatalf("body=%s", rec.Body.String())
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatal(err)
	}
}

func TestNewHandler_Health(t *testing.T) {
	h := newTestHandler(t, testConfig(t, "http://crm.local"), HandlerOptions{})

	rec := do(t, h, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/health", "", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/autofill/api/nope", "autofill-admin", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestNewHandler_EnforcesRoles(t *testing.T) {
	crm := newCRMBackend(t)
	h := newTestHandler(t, testConfig(t, crm.server.URL), HandlerOptions{})

	if rec := do(t, h, http.MethodGet, "/autofill/api/configurations", "", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/autofill/api/configurations", "autofill-viewer", ""); rec.Code != http.StatusOK {
		t.Fatalf("viewer status=%d", rec.Code)
	}
	body := `{"name":"Inbound","location_id":"Loc-1"}`
	if rec := do(t, h, http.MethodPost, "/autofill/api/configurations", "autofill-viewer", body); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer create status=%d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/autofill/api/configurations", "autofill-admin", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create status=%d body=%s", rec.Code, rec.Body.String())
	}
	var cfg struct {
		ID string `json:"id"`
	}
	decodeData(t, rec, &cfg)

	base := "/autofill/api/configurations/" + cfg.ID
	if rec := do(t, h, http.MethodGet, base+"/fields", "autofill-viewer", ""); rec.Code != http.StatusOK {
		t.Fatalf("viewer fields status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, base+"/fields:sync", "autofill-viewer", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer sync status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, base+"/fields:sync", "autofill-admin", ""); rec.Code != http.StatusOK {
		t.Fatalf("admin sync status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/autofill/api/field-types", "extractor", ""); rec.Code != http.StatusOK {
		t.Fatalf("extractor field types status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/autofill/api/merge", "autofill-viewer", `{}`); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer merge status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, base, "autofill-admin", ""); rec.Code != http.StatusOK {
		t.Fatalf("admin get status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/autofill/api/configurations/missing", "autofill-admin", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d", rec.Code)
	}
}

func TestNewHandler_MergeEndToEnd(t *testing.T) {
	crm := newCRMBackend(t)
	store := persistence.NewConfigMemoryStore()
	h := newTestHandler(t, testConfig(t, crm.server.URL), HandlerOptions{ConfigStore: store})

	rec := do(t, h, http.MethodPost, "/autofill/api/configurations", "autofill-admin", `{"name":"Inbound","location_id":"loc-1"}`)
	var cfg struct {
		ID string `json:"id"`
	}
	decodeData(t, rec, &cfg)
	fields := []string{
		`{"field_name":"First name","target_key":"contact.first_name","field_type":"TEXT","overwrite_policy":"if_empty"}`,
		`{"field_name":"City","target_key":"contact.city","field_type":"TEXT","overwrite_policy":"never"}`,
	}
	for _, f := range fields {
		if rec := do(t, h, http.MethodPost, "/autofill/api/configurations/"+cfg.ID+"/fields", "autofill-admin", f); rec.Code != http.StatusCreated {
			t.Fatalf("create field status=%d body=%s", rec.Code, rec.Body.String())
		}
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(map[string]any{
		"configuration_id": cfg.ID,
		"record_id":        "rec-1",
		"status":           "ok",
		"extracted_data":   map[string]any{"contact.first_name": "Ada", "contact.city": "Bergen"},
	})
	rec = do(t, h, http.MethodPost, "/autofill/api/merge", "extractor", buf.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("merge status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Outcome string `json:"outcome"`
		Result  struct {
			UpdatedKeys []string `json:"updated_keys"`
		} `json:"result"`
	}
	decodeData(t, rec, &out)
	if out.Outcome != "WRITTEN" || len(out.Result.UpdatedKeys) != 1 {
		t.Fatalf("out=%+v body=%s", out, rec.Body.String())
	}

	crm.mu.Lock()
	defer crm.mu.Unlock()
	if len(crm.puts) != 1 || crm.puts[0]["firstName"] != "Ada" {
		t.Fatalf("puts=%v", crm.puts)
	}
	if _, ok := crm.puts[0]["city"]; ok {
		t.Fatalf("never policy overwritten: %v", crm.puts[0])
	}
}

func TestNewHandler_Errors(t *testing.T) {
	cfg := testConfig(t, "http://crm.local")

	bad := cfg
	bad.CRM.BaseURL = "ftp://crm.local"
	if _, closeFn, err := NewHandler(context.Background(), bad, HandlerOptions{}); err == nil {
		t.Fatal("expected crm error")
	} else {
		closeFn()
	}

	bad = cfg
	bad.ConfigStoreDSN = "redis://localhost"
	if _, _, err := NewHandler(context.Background(), bad, HandlerOptions{}); err == nil {
		t.Fatal("expected store error")
	}

	bad = cfg
	bad.Authz.Mode = "bogus"
	if _, _, err := NewHandler(context.Background(), bad, HandlerOptions{}); err == nil {
		t.Fatal("expected authz error")
	}

	bad = cfg
	bad.AllowlistPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, _, err := NewHandler(context.Background(), bad, HandlerOptions{}); err == nil {
		t.Fatal("expected allowlist error")
	}

	partial := filepath.Join(t.TempDir(), "allowlist.yaml")
	yaml := "version: 1\nentrypoints:\n  server:\n    routes:\n      - path: /health\n        methods: [GET]\n        route_class: ops\n"
	if err := os.WriteFile(partial, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	bad = cfg
	bad.AllowlistPath = partial
	if _, _, err := NewHandler(context.Background(), bad, HandlerOptions{}); err == nil || !strings.Contains(err.Error(), "missing from allowlist") {
		t.Fatalf("err=%v", err)
	}
}

func TestNewCRMLimiter(t *testing.T) {
	if l := newCRMLimiter(CRMConfig{}); l != nil {
		t.Fatalf("limiter=%v", l)
	}
	l := newCRMLimiter(CRMConfig{RateLimitRPS: 5})
	if l == nil || l.Burst() != 1 || float64(l.Limit()) != 5 {
		t.Fatalf("limiter=%v", l)
	}
}
