package console

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdesk/fleetdesk-client/internal/access"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.originGuardMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Health check (never guarded)
	r.Get("/health", s.handleHealth)

	// Views from the route table
	views := map[string]http.HandlerFunc{
		access.ViewLogin:        s.handleLoginView,
		access.ViewDashboard:    s.handleDashboard,
		access.ViewDevices:      s.handleDevices,
		access.ViewDeviceDetail: s.handleDeviceDetail,
		access.ViewTerminal:     s.handleTerminal,
		access.ViewProfile:      s.handleProfile,
	}
	for _, route := range access.DefaultRoutes() {
		if route.RedirectTo != "" {
			r.Handle(route.Path, http.RedirectHandler(route.RedirectTo, http.StatusSeeOther))
			continue
		}
		h, ok := views[route.Name]
		if !ok {
			s.logger.Warn("route has no view", "path", route.Path, "name", route.Name)
			continue
		}
		r.With(s.guard(route.Meta)).Get(route.Path, h)
	}

	// Guest actions
	r.With(s.guard(access.Meta{RequiresGuest: true})).Post(access.LoginPath, s.handleLogin)

	// Signed-in actions
	r.Group(func(r chi.Router) {
		r.Use(s.guard(access.Meta{RequiresAuth: true}))

		r.Post("/logout", s.handleLogout)
		r.Get("/events", s.handleEvents)

		// Full paths rather than a mounted subrouter: the views above
		// already own GET /devices/{deviceId}.
		r.Post("/devices/scan", s.handleScan)
		r.Put("/devices/{deviceId}", s.handleUpdateDevice)
		r.Get("/devices/{deviceId}/logs", s.handleDeviceLogs)
		r.Post("/devices/{deviceId}/occupy", s.handleOccupy)
		r.Post("/devices/{deviceId}/release", s.handleRelease)
	})

	return r
}

// handleHealth returns the console health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"status":        "ok",
		"version":       s.version,
		"authenticated": s.session.IsAuthenticated(),
	}
	if s.channel != nil {
		status["realtime"] = s.channel.State().String()
	}
	writeJSON(w, http.StatusOK, status)
}
