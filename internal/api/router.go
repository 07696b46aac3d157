/**
 * @description
 * This file sets up the HTTP router for the licensing-service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, and authentication, and maps the routes to their
 * corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the licensing-service routes.
func NewRouter(h *Handler, serviceJWTSecret string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Licensing service is healthy"))
	})

	// Payment processor webhook. Unauthenticated by necessity; the payload
	// carries its own signature.
	r.Post("/webhooks/jvzoo", h.handleJVZooIPN)

	// Public endpoints for installed client software, rate limited per
	// license key.
	r.Route("/api/v1/licenses", func(r chi.Router) {
		r.Post("/validate", h.handleValidateLicense)
		r.Post("/activate", h.handleActivateLicense)
	})

	// Internal service-to-service endpoints.
	r.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Use(ServiceAuthMiddleware(serviceJWTSecret))

		r.Get("/entitlements", h.handleGetEntitlements)
		r.Post("/credits/consume", h.handleConsumeCredits)
		r.Get("/licenses", h.handleListLicenses)
	})

	return r
}
