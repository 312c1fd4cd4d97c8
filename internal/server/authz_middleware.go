package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jacksonlee411/contact-autofill/internal/routing"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/ports"
	"github.com/jacksonlee411/contact-autofill/pkg/authz"
)

const (
	autofillAPIPrefix    = "/autofill/api"
	configurationsPrefix = autofillAPIPrefix + "/configurations/"
	verbSuffixSync       = ":sync"
	verbSuffixRestore    = ":restore"
	errCodeForbidden     = "forbidden"
	errCodeAuthzError    = "authz_error"
	errCodeDomainLookup  = "authz_domain_error"
)

func loadAuthorizer(cfg AuthzConfig) (*authz.Authorizer, error) {
	mode, err := authz.ParseMode(cfg.Mode, cfg.UnsafeAllowDisabled)
	if err != nil {
		return nil, err
	}
	return authz.NewAuthorizer(cfg.ModelPath, cfg.PolicyPath, mode)
}

type authorizer interface {
	Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error)
}

// domainResolver maps a configuration id to the authz domain of its CRM
// location.
type domainResolver func(ctx context.Context, configurationID string) (string, error)

func configStoreDomainResolver(store ports.ConfigStore) domainResolver {
	return func(ctx context.Context, configurationID string) (string, error) {
		cfg, err := store.GetConfiguration(ctx, configurationID)
		if errors.Is(err, ports.ErrConfigurationNotFound) {
			// The handler reports the 404; only global grants reach it.
			return authz.DomainGlobal, nil
		}
		if err != nil {
			return "", err
		}
		return authz.DomainFromLocationID(cfg.LocationID), nil
	}
}

func withAuthz(classifier *routing.Classifier, a authorizer, resolve domainResolver, logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassInternalAPI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		roleSlug := authz.RoleAnonymous
		if p, ok := currentPrincipal(r.Context()); ok {
			roleSlug = p.RoleSlug
		}
		subject := authz.SubjectFromRoleSlug(roleSlug)

		domain := authz.DomainGlobal
		if id, ok := configurationIDFromPath(path); ok && resolve != nil {
			d, err := resolve(r.Context(), id)
			if err != nil {
				logger.Error("authz: resolve domain", "configuration_id", id, "err", err)
				routing.WriteError(w, r, rc, http.StatusInternalServerError, errCodeDomainLookup, "authz domain lookup failed")
				return
			}
			domain = d
		}

		allowed, enforced, err := a.Authorize(subject, domain, object, action)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, errCodeAuthzError, "authz error")
			return
		}
		if !allowed {
			logger.Info("authz: denied", "subject", subject, "domain", domain, "object", object, "action", action, "enforced", enforced)
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, errCodeForbidden, errCodeForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	switch path {
	case autofillAPIPrefix + "/merge":
		if method == http.MethodPost {
			return authz.ObjectAutofillMerge, authz.ActionAdmin, true
		}
		return "", "", false
	case autofillAPIPrefix + "/field-types":
		if method == http.MethodGet {
			return authz.ObjectAutofillFieldTypes, authz.ActionRead, true
		}
		return "", "", false
	case autofillAPIPrefix + "/configurations":
		return configurationRequirement(method)
	}

	if !strings.HasPrefix(path, configurationsPrefix) {
		return "", "", false
	}
	if strings.HasSuffix(path, verbSuffixSync) || strings.HasSuffix(path, verbSuffixRestore) {
		if method == http.MethodPost {
			return authz.ObjectAutofillFields, authz.ActionAdmin, true
		}
		return "", "", false
	}
	return configurationRequirement(method)
}

func configurationRequirement(method string) (string, string, bool) {
	switch method {
	case http.MethodGet:
		return authz.ObjectAutofillConfigurations, authz.ActionRead, true
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return authz.ObjectAutofillConfigurations, authz.ActionAdmin, true
	default:
		return "", "", false
	}
}

func configurationIDFromPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, configurationsPrefix)
	if !ok {
		return "", false
	}
	if i := strings.IndexAny(rest, "/:"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
