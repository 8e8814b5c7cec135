package httpapi

import (
	"signaling-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the REST surface. authMW must put the caller identity on the
// request context; RBAC is applied per group here.
// devTokens mounts the token issuing endpoint and must stay off in production.
func (h Handlers) Register(r *gin.Engine, authMW gin.HandlerFunc, devTokens bool) {
	r.GET("/healthz", Health)

	if devTokens {
		r.POST("/v1/auth/token", h.IssueToken)
	}

	v1 := r.Group("/v1")
	v1.Use(authMW, ClientIP(), rbac.RequireOrg())

	staff := v1.Group("/staff")
	{
		staff.GET("/availability", h.ListAvailableStaff)
		staff.POST("/availability", rbac.RequireAnyRole(rbac.RoleStaff), h.SetAvailability)
		staff.PUT("/availability", rbac.RequireAnyRole(rbac.RoleStaff), h.SetAvailability)
	}

	calls := v1.Group("/calls")
	{
		calls.POST("", rbac.RequireAnyRole(rbac.RoleClient), h.InitiateCall)
		calls.GET("/summary", rbac.RequireAnyRole(rbac.RoleStaff), h.CallsSummary)
		calls.GET("/:id", h.GetCall)
		calls.GET("/:id/events", rbac.RequireAnyRole(rbac.RoleStaff), h.CallEvents)
		calls.POST("/:id/accept", rbac.RequireAnyRole(rbac.RoleStaff), h.AcceptCall)
		calls.POST("/:id/decline", rbac.RequireAnyRole(rbac.RoleStaff), h.DeclineCall)
		calls.POST("/:id/cancel", rbac.RequireAnyRole(rbac.RoleClient), h.CancelCall)
		calls.POST("/:id/end", h.EndCall)
	}
}
