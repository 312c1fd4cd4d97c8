package routing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jacksonlee411/contact-autofill/pkg/httperr"
)

type ErrorEnvelope struct {
	Success bool              `json:"success"`
	Code    string            `json:"code"`
	Error   string            `json:"error"`
	Details map[string]any    `json:"details,omitempty"`
	TraceID string            `json:"trace_id"`
	Meta    ErrorEnvelopeMeta `json:"meta"`
}

type ErrorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func WriteError(w http.ResponseWriter, r *http.Request, rc RouteClass, status int, code string, message string) {
	writeError(w, r, rc, status, code, message, nil)
}

// WriteHTTPError renders err with the status and code its httperr kind maps
// to. Untyped errors become a 500 whose message is not exposed.
func WriteHTTPError(w http.ResponseWriter, r *http.Request, rc RouteClass, err error) {
	e, ok := errors.AsType[*httperr.Error](err)
	if !ok || e == nil {
		writeError(w, r, rc, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}
	writeError(w, r, rc, httperr.StatusCode(err), e.Code, e.Error(), e.Details)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, rc RouteClass, status int, code string, message string, details map[string]any) {
	if isJSONOnly(rc) || wantsJSON(r) {
		WriteJSON(w, status, ErrorEnvelope{
			Code:    code,
			Error:   message,
			Details: details,
			TraceID: traceIDFromRequest(r),
			Meta: ErrorEnvelopeMeta{
				Path:   r.URL.Path,
				Method: r.Method,
			},
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message + "\n"))
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Accept"), "application/json")
}

func isJSONOnly(rc RouteClass) bool {
	return rc == RouteClassInternalAPI || rc == RouteClassPublicAPI || rc == RouteClassOps
}

func traceIDFromRequest(r *http.Request) string {
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}
