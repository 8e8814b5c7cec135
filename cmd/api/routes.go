package main

import (
	"signaling-platform/internal/audit"
	"signaling-platform/internal/auth"
	"signaling-platform/internal/availability"
	"signaling-platform/internal/config"
	"signaling-platform/internal/coordinator"
	"signaling-platform/internal/httpapi"
	"signaling-platform/internal/realtime"
	"signaling-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

type deps struct {
	auth     *auth.Manager
	coord    *coordinator.Coordinator
	registry *availability.Registry
	reports  *reporting.Service
	audit    *audit.Service
	rtc      *realtime.Server
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, d deps) {
	h := httpapi.Handlers{
		Auth:         d.auth,
		Calls:        d.coord,
		Staff:        d.registry,
		Reports:      d.reports,
		Audit:        d.audit,
		DefaultOrgID: cfg.App.DefaultOrgID,
	}
	h.Register(r, auth.RequireAccessToken(d.auth), !cfg.IsProduction())

	// The realtime channel authenticates itself: browsers pass the token as a
	// query parameter on the upgrade request.
	r.GET("/v1/rtc", d.rtc.Handle)
}
