package routing

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

type Router struct {
	classifier *Classifier
	routes     map[string]map[string]routeEntry
	patterns   []patternEntry
	logger     *slog.Logger
}

type routeEntry struct {
	rc      RouteClass
	handler http.Handler
}

type patternEntry struct {
	pattern PathPattern
	methods map[string]routeEntry
}

func NewRouter(classifier *Classifier, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		classifier: classifier,
		routes:     make(map[string]map[string]routeEntry),
		logger:     logger,
	}
}

// Handle registers h for method on path. Paths with {param} segments are
// matched in registration order and their values exposed via r.PathValue.
func (r *Router) Handle(rc RouteClass, method string, path string, h http.Handler) {
	entry := routeEntry{
		rc: rc,
		handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("routing: handler panic", "path", req.URL.Path, "method", req.Method, "panic", rec, "stack", string(debug.Stack()))
					WriteError(w, req, rc, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			h.ServeHTTP(w, req)
		}),
	}

	if p, ok := parsePathPattern(path); ok {
		for i := range r.patterns {
			if r.patterns[i].pattern.raw == path {
				r.patterns[i].methods[method] = entry
				return
			}
		}
		r.patterns = append(r.patterns, patternEntry{pattern: p, methods: map[string]routeEntry{method: entry}})
		return
	}

	if r.routes[path] == nil {
		r.routes[path] = make(map[string]routeEntry)
	}
	r.routes[path][method] = entry
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	methods, params, ok := r.lookup(req.URL.Path)
	if !ok {
		WriteError(w, req, r.classifier.Classify(req.URL.Path), http.StatusNotFound, "not_found", "not found")
		return
	}
	entry, ok := methods[req.Method]
	if !ok {
		WriteError(w, req, entrypointClass(methods, r.classifier.Classify(req.URL.Path)), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	for k, v := range params {
		req.SetPathValue(k, v)
	}
	entry.handler.ServeHTTP(w, req)
}

func (r *Router) lookup(path string) (map[string]routeEntry, map[string]string, bool) {
	if methods, ok := r.routes[path]; ok {
		return methods, nil, true
	}
	for _, p := range r.patterns {
		if params, ok := p.pattern.Match(path); ok {
			return p.methods, params, true
		}
	}
	return nil, nil, false
}

func entrypointClass(methods map[string]routeEntry, fallback RouteClass) RouteClass {
	for _, e := range methods {
		return e.rc
	}
	return fallback
}
