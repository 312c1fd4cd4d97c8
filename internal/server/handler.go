package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jacksonlee411/contact-autofill/internal/routing"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/ports"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/infrastructure/crm"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/infrastructure/persistence"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/presentation/controllers"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/services"
	"golang.org/x/time/rate"
)

const serverEntrypoint = "server"

// HandlerOptions overrides the collaborators NewHandler would otherwise build
// from Config.
type HandlerOptions struct {
	ConfigStore ports.ConfigStore
	Records     ports.RecordStore
	Schema      ports.FieldSchemaStore
	Authorizer  authorizer
	Logger      *slog.Logger
}

// NewHandler wires the config store, CRM client, facade and controllers
// behind the allowlisted router. The returned close func is never nil.
func NewHandler(ctx context.Context, cfg Config, opts HandlerOptions) (http.Handler, func(), error) {
	noop := func() {}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a, err := routing.LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return nil, noop, err
	}
	classifier, err := routing.NewClassifier(a, serverEntrypoint)
	if err != nil {
		return nil, noop, err
	}

	checker := opts.Authorizer
	if checker == nil {
		az, err := loadAuthorizer(cfg.Authz)
		if err != nil {
			return nil, noop, err
		}
		checker = az
	}

	store := opts.ConfigStore
	closeFn := noop
	if store == nil {
		s, c, err := persistence.OpenConfigStore(ctx, cfg.ConfigStoreDSN)
		if err != nil {
			return nil, noop, err
		}
		store, closeFn = s, c
	}

	records, schema := opts.Records, opts.Schema
	if records == nil || schema == nil {
		client, err := crm.New(cfg.CRM.BaseURL, cfg.CRM.APIToken, cfg.CRM.APIVersion, newCRMLimiter(cfg.CRM))
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		if records == nil {
			records = client
		}
		if schema == nil {
			schema = client
		}
	}

	facade := services.NewAutofillService(store, records, schema, logger)
	api := controllers.AutofillController{Facade: facade}

	router := routing.NewRouter(classifier, logger)
	routes := []struct {
		rc      routing.RouteClass
		methods []string
		path    string
		handler http.HandlerFunc
	}{
		{routing.RouteClassOps, []string{http.MethodGet}, "/health", handleHealth},
		{routing.RouteClassInternalAPI, []string{http.MethodPost}, "/autofill/api/merge", api.HandleMerge},
		{routing.RouteClassInternalAPI, []string{http.MethodGet}, "/autofill/api/field-types", api.HandleFieldTypes},
		{routing.RouteClassInternalAPI, []string{http.MethodGet, http.MethodPost}, "/autofill/api/configurations", api.HandleConfigurations},
		{routing.RouteClassInternalAPI, []string{http.MethodGet, http.MethodPut, http.MethodDelete}, "/autofill/api/configurations/{configuration_id}", api.HandleConfiguration},
		{routing.RouteClassInternalAPI, []string{http.MethodGet, http.MethodPost}, "/autofill/api/configurations/{configuration_id}/fields", api.HandleFields},
		{routing.RouteClassInternalAPI, []string{http.MethodPost}, "/autofill/api/configurations/{configuration_id}/fields:sync", api.HandleSyncFields},
		{routing.RouteClassInternalAPI, []string{http.MethodGet, http.MethodPut, http.MethodDelete}, "/autofill/api/configurations/{configuration_id}/fields/{field_id}", api.HandleField},
		{routing.RouteClassInternalAPI, []string{http.MethodPost}, "/autofill/api/configurations/{configuration_id}/fields/{field_id}:restore", api.HandleRestoreField},
	}
	for _, rt := range routes {
		for _, m := range rt.methods {
			if !a.Allows(serverEntrypoint, m, rt.path) {
				closeFn()
				return nil, noop, fmt.Errorf("server: route %s %s missing from allowlist", m, rt.path)
			}
			router.Handle(rt.rc, m, rt.path, rt.handler)
		}
	}

	var h http.Handler = router
	h = withAuthz(classifier, checker, configStoreDomainResolver(store), logger, h)
	h = withPrincipalFromHeaders(h)
	return h, closeFn, nil
}

func newCRMLimiter(cfg CRMConfig) *rate.Limiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	routing.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
