package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
	yaml "gopkg.in/yaml.v3"

	"fieldops/openapi"
)

// OpenAPIHandler serves the OpenAPI document as YAML.
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec)
}

// OpenAPIJSONHandler serves the same document converted to JSON for Swagger UI.
func (s *Server) OpenAPIJSONHandler(w http.ResponseWriter, r *http.Request) {
	var obj map[string]any
	if err := yaml.Unmarshal(openapi.Spec, &obj); err != nil {
		writeProblem(w, http.StatusInternalServerError, "OpenAPI parse failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

// DocsHandler serves Swagger UI under /docs/.
func (s *Server) DocsHandler() http.Handler {
	return httpSwagger.Handler(httpSwagger.URL("/openapi.json"))
}
