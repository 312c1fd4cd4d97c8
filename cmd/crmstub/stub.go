package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jacksonlee411/contact-autofill/internal/routing"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/fieldmeta"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

const stubEntrypoint = "crmstub"

type contact struct {
	attributes   map[string]any
	customFields map[string]any
}

type store struct {
	mu sync.Mutex

	contacts map[string]*contact
	fields   map[string][]types.RemoteFieldSnapshot // location_id -> definitions
}

func newStore(seedContacts []string) *store {
	s := &store{
		contacts: map[string]*contact{},
		fields:   map[string][]types.RemoteFieldSnapshot{},
	}
	for _, id := range seedContacts {
		if id = strings.TrimSpace(id); id != "" {
			s.contacts[id] = &contact{attributes: map[string]any{}, customFields: map[string]any{}}
		}
	}
	return s
}

func newHandler(a routing.Allowlist, s *store, token string, logger *slog.Logger) (http.Handler, error) {
	classifier, err := routing.NewClassifier(a, stubEntrypoint)
	if err != nil {
		return nil, err
	}
	router := routing.NewRouter(classifier, logger)
	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		routing.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	router.Handle(routing.RouteClassPublicAPI, http.MethodGet, "/contacts/{contact_id}", requireToken(token, s.getContact))
	router.Handle(routing.RouteClassPublicAPI, http.MethodPut, "/contacts/{contact_id}", requireToken(token, s.putContact))
	router.Handle(routing.RouteClassPublicAPI, http.MethodGet, "/locations/{location_id}/customFields", requireToken(token, s.listFields))
	router.Handle(routing.RouteClassPublicAPI, http.MethodPost, "/locations/{location_id}/customFields", requireToken(token, s.createField))
	return router, nil
}

func requireToken(token string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	routing.WriteJSON(w, status, map[string]any{"statusCode": status, "message": msg})
}

func (s *store) getContact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("contact_id")
	s.mu.Lock()
	c, ok := s.contacts[id]
	var body map[string]any
	if ok {
		body = c.render(id)
	}
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "Contact not found")
		return
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"contact": body})
}

func (s *store) putContact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("contact_id")
	var body map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		writeMessage(w, http.StatusBadRequest, "invalid json body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Contact not found")
		return
	}
	for key, value := range body {
		switch {
		case key == "customFields":
			items, _ := value.([]any)
			for _, item := range items {
				obj, _ := item.(map[string]any)
				if fid, _ := obj["id"].(string); fid != "" {
					c.customFields[fid] = obj["value"]
				}
			}
		case key == "id":
		case !fieldmeta.IsWritableAttribute(key):
			writeMessage(w, http.StatusUnprocessableEntity, "property "+key+" should not exist")
			return
		default:
			c.attributes[key] = value
		}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"contact": c.render(id)})
}

func (c *contact) render(id string) map[string]any {
	out := make(map[string]any, len(c.attributes)+2)
	for k, v := range c.attributes {
		out[k] = v
	}
	out["id"] = id
	cfs := make([]map[string]any, 0, len(c.customFields))
	for fid, v := range c.customFields {
		cfs = append(cfs, map[string]any{"id": fid, "value": v})
	}
	out["customFields"] = cfs
	return out
}

func (s *store) listFields(w http.ResponseWriter, r *http.Request) {
	loc := r.PathValue("location_id")
	s.mu.Lock()
	list := make([]types.RemoteFieldSnapshot, 0, len(s.fields[loc]))
	for _, f := range s.fields[loc] {
		list = append(list, f.Clone())
	}
	s.mu.Unlock()
	routing.WriteJSON(w, http.StatusOK, map[string]any{"customFields": list})
}

func (s *store) createField(w http.ResponseWriter, r *http.Request) {
	loc := r.PathValue("location_id")
	var req types.CreateFieldPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.TrimSpace(req.DataType) == "" {
		writeMessage(w, http.StatusUnprocessableEntity, "name and dataType are required")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	field := types.RemoteFieldSnapshot{
		ID:             id.String(),
		Name:           name,
		DataType:       strings.ToUpper(req.DataType),
		FieldKey:       "contact." + strings.ToLower(strings.Join(strings.Fields(name), "_")),
		ParentID:       req.ParentID,
		Position:       req.Position,
		Placeholder:    req.Placeholder,
		Model:          "contact",
		ObjectID:       req.ObjectID,
		ObjectSchemaID: req.ObjectSchemaID,
		AcceptedFormat: req.AcceptedFormat,
		MaxFileLimit:   req.MaxFileLimit,
	}
	for _, o := range req.Options {
		field.PicklistOptions = append(field.PicklistOptions, o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.fields[loc] {
		if strings.EqualFold(existing.Name, name) {
			writeMessage(w, http.StatusBadRequest, "Custom field with name "+name+" already exists")
			return
		}
	}
	s.fields[loc] = append(s.fields[loc], field)
	routing.WriteJSON(w, http.StatusOK, map[string]any{"customField": field.Clone()})
}
