// Package server provides route registration for visitbook.
package server

import (
	"net/http"

	"github.com/example/visitbook/internal/server/middleware"
)

// setupRoutes registers all HTTP routes.
func (s *Server) setupRoutes() {
	// Public surface: submission, validation, email action links, OAuth
	// callback, health. Submission traffic is rate limited per client IP.
	publicMux := http.NewServeMux()
	s.apiHandler.RegisterPublicRoutes(publicMux)

	limited := middleware.RateLimit(s.rateLimiter)(publicMux)
	s.router.Handle("/api/v1/bookings", limited)
	s.router.Handle("/api/v1/bookings/validate", limited)
	s.router.Handle("/action/{token}", limited)

	// Unlimited public endpoints
	s.router.Handle("/oauth/callback", publicMux)
	s.router.Handle("/healthz", publicMux)

	// Admin surface behind the shared admin key
	adminMux := http.NewServeMux()
	s.apiHandler.RegisterAdminRoutes(adminMux)
	s.router.Handle("/api/v1/admin/",
		middleware.AdminKeyAuth(s.config.Auth.AdminKey)(adminMux))
}
