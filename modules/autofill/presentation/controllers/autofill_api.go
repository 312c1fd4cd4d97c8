package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jacksonlee411/contact-autofill/internal/routing"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/fieldmeta"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/services"
	"github.com/jacksonlee411/contact-autofill/pkg/httperr"
)

const (
	errBadJSON        = "BAD_JSON"
	errBodyTooLarge   = "BODY_TOO_LARGE"
	maxRequestBodyLen = 1 << 20
)

type AutofillController struct {
	Facade services.AutofillService
}

type mergeAPIRequest struct {
	ConfigurationID string          `json:"configuration_id"`
	RecordID        string          `json:"record_id"`
	Status          string          `json:"status"`
	Message         string          `json:"message"`
	ExtractedData   json.RawMessage `json:"extracted_data"`
	DryRun          bool            `json:"dry_run"`
}

type configurationAPIRequest struct {
	Name       string `json:"name"`
	LocationID string `json:"location_id"`
}

type fieldConfigAPIRequest struct {
	FieldName              string                     `json:"field_name"`
	TargetKey              string                     `json:"target_key"`
	FieldKey               string                     `json:"field_key"`
	FieldType              string                     `json:"field_type"`
	OverwritePolicy        string                     `json:"overwrite_policy"`
	ConditionExpr          string                     `json:"condition_expr"`
	Description            string                     `json:"description"`
	SortOrder              int                        `json:"sort_order"`
	OriginalRemoteSnapshot *types.RemoteFieldSnapshot `json:"original_remote_snapshot"`
}

func (in fieldConfigAPIRequest) toInput() services.FieldConfigInput {
	return services.FieldConfigInput{
		FieldName:              in.FieldName,
		TargetKey:              in.TargetKey,
		FieldKey:               in.FieldKey,
		FieldType:              in.FieldType,
		OverwritePolicy:        in.OverwritePolicy,
		ConditionExpr:          in.ConditionExpr,
		Description:            in.Description,
		SortOrder:              in.SortOrder,
		OriginalRemoteSnapshot: in.OriginalRemoteSnapshot,
	}
}

func (c AutofillController) HandleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeAPIRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := c.Facade.Merge(r.Context(), services.MergeRequest{
		ConfigurationID: req.ConfigurationID,
		RecordID:        req.RecordID,
		Status:          req.Status,
		Message:         req.Message,
		ExtractedData:   req.ExtractedData,
		DryRun:          req.DryRun,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (c AutofillController) HandleConfigurations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := c.Facade.ListConfigurations(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, list)
	case http.MethodPost:
		var req configurationAPIRequest
		if !decodeBody(w, r, &req) {
			return
		}
		created, err := c.Facade.CreateConfiguration(r.Context(), services.ConfigurationInput{Name: req.Name, LocationID: req.LocationID})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w, r)
	}
}

func (c AutofillController) HandleConfiguration(w http.ResponseWriter, r *http.Request) {
	configurationID := r.PathValue("configuration_id")
	switch r.Method {
	case http.MethodGet:
		got, err := c.Facade.GetConfiguration(r.Context(), configurationID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, got)
	case http.MethodPut:
		var req configurationAPIRequest
		if !decodeBody(w, r, &req) {
			return
		}
		updated, err := c.Facade.UpdateConfiguration(r.Context(), configurationID, services.ConfigurationInput{Name: req.Name, LocationID: req.LocationID})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := c.Facade.DeleteConfiguration(r.Context(), configurationID); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"id": configurationID})
	default:
		writeMethodNotAllowed(w, r)
	}
}

func (c AutofillController) HandleFields(w http.ResponseWriter, r *http.Request) {
	configurationID := r.PathValue("configuration_id")
	switch r.Method {
	case http.MethodGet:
		list, err := c.Facade.ListFieldConfigs(r.Context(), configurationID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, list)
	case http.MethodPost:
		var req fieldConfigAPIRequest
		if !decodeBody(w, r, &req) {
			return
		}
		created, err := c.Facade.CreateFieldConfig(r.Context(), configurationID, req.toInput())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w, r)
	}
}

func (c AutofillController) HandleField(w http.ResponseWriter, r *http.Request) {
	configurationID := r.PathValue("configuration_id")
	fieldID := r.PathValue("field_id")
	switch r.Method {
	case http.MethodGet:
		got, err := c.Facade.GetFieldConfig(r.Context(), configurationID, fieldID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, got)
	case http.MethodPut:
		var req fieldConfigAPIRequest
		if !decodeBody(w, r, &req) {
			return
		}
		updated, err := c.Facade.UpdateFieldConfig(r.Context(), configurationID, fieldID, req.toInput())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := c.Facade.DeleteFieldConfig(r.Context(), configurationID, fieldID); err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"id": fieldID})
	default:
		writeMethodNotAllowed(w, r)
	}
}

func (c AutofillController) HandleSyncFields(w http.ResponseWriter, r *http.Request) {
	result, err := c.Facade.SyncFields(r.Context(), r.PathValue("configuration_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (c AutofillController) HandleRestoreField(w http.ResponseWriter, r *http.Request) {
	restored, err := c.Facade.RestoreField(r.Context(), r.PathValue("configuration_id"), r.PathValue("field_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, restored)
}

func (AutofillController) HandleFieldTypes(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, fieldmeta.ListFieldTypes())
}

// decodeBody reads a JSON object into dst, rejecting unknown fields. It
// writes the error response and returns false when the body is unusable.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyLen))
	if err != nil {
		if _, ok := errors.AsType[*http.MaxBytesError](err); ok {
			writeError(w, r, httperr.NewValidation(errBodyTooLarge, "request body too large"))
			return false
		}
		writeError(w, r, httperr.NewValidation(errBadJSON, "bad json"))
		return false
	}
	if strings.TrimSpace(string(body)) == "" {
		writeError(w, r, httperr.NewValidation(errBadJSON, "request body is required"))
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, httperr.NewValidation(errBadJSON, "bad json: "+err.Error()))
		return false
	}
	return true
}

func writeData(w http.ResponseWriter, status int, data any) {
	routing.WriteJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	routing.WriteHTTPError(w, r, routing.RouteClassInternalAPI, err)
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}
