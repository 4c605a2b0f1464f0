// Package docs serves the OpenAPI document and the Swagger UI.
package docs

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

// SpecPath is where the OpenAPI document is served.
const SpecPath = "/api/openapi.yaml"

// UIPath is the prefix the Swagger UI is mounted under.
const UIPath = "/docs"

//go:embed openapi.yaml
var openapiYAML []byte

// OpenAPI returns the embedded document.
func OpenAPI() []byte {
	return openapiYAML
}

// RegisterRoutes mounts the document and the UI on r.
func RegisterRoutes(r chi.Router) {
	r.Get(SpecPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write(openapiYAML)
	})

	r.Get(UIPath, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, UIPath+"/index.html", http.StatusMovedPermanently)
	})
	r.Mount(UIPath+"/", httpSwagger.Handler(
		httpSwagger.URL(SpecPath),
	))
}
