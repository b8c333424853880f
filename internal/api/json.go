package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"fieldops/internal/lifecycle"
	"fieldops/internal/store"
)

// Problem represents an RFC7807 problem details response body. Guard names
// the lifecycle check that refused the request.
type Problem struct {
	Type      string                    `json:"type"`
	Title     string                    `json:"title"`
	Status    int                       `json:"status"`
	Detail    string                    `json:"detail,omitempty"`
	Instance  string                    `json:"instance,omitempty"`
	Guard     string                    `json:"guard,omitempty"`
	Field     string                    `json:"field,omitempty"`
	Conflicts *lifecycle.ConflictReport `json:"conflicts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps lifecycle and store errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := Problem{Type: "about:blank", Detail: err.Error(), Instance: r.URL.Path}
	var (
		nf  *lifecycle.NotFoundError
		ve  *lifecycle.ValidationError
		ite *lifecycle.InvalidTransitionError
		ce  *lifecycle.ConflictError
	)
	switch {
	case errors.As(err, &nf):
		p.Status, p.Title = http.StatusNotFound, "Not Found"
	case errors.As(err, &ve):
		p.Status, p.Title, p.Guard, p.Field = http.StatusUnprocessableEntity, "Validation Failed", ve.Guard, ve.Field
	case errors.As(err, &ite):
		p.Status, p.Title, p.Guard = http.StatusConflict, "Invalid Transition", ite.Guard
	case errors.As(err, &ce):
		p.Status, p.Title = http.StatusConflict, "Scheduling Conflict"
		p.Conflicts = &ce.Conflicts
	case errors.Is(err, store.ErrNotFound):
		p.Status, p.Title = http.StatusNotFound, "Not Found"
	case errors.Is(err, store.ErrDuplicate):
		p.Status, p.Title = http.StatusConflict, "Already Exists"
	default:
		p.Status, p.Title = http.StatusInternalServerError, "Internal Error"
	}
	writeJSON(w, p.Status, p)
}

// decodeJSON decodes a request body. An empty body leaves v untouched when
// optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
	return false
}
