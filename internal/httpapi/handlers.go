package httpapi

import (
	"net/http"
	"time"

	"signaling-platform/internal/audit"
	"signaling-platform/internal/auth"
	"signaling-platform/internal/availability"
	"signaling-platform/internal/coordinator"
	"signaling-platform/internal/rbac"
	"signaling-platform/internal/reporting"
	"signaling-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Calls   *coordinator.Coordinator
	Staff   *availability.Registry
	Reports *reporting.Service
	Audit   *audit.Service

	// DefaultOrgID fills tokens issued without an org.
	DefaultOrgID string
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ClientIP stores the caller address on the request context for audit events.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// --- Auth ---

type tokenRequest struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
}

// IssueToken hands out a token pair for any identity.
//
// NOTE: development only; routes never mount it in production.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.OrgID == "" {
		req.OrgID = h.DefaultOrgID
	}
	if req.UserID == "" || req.OrgID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, org_id, role required"})
		return
	}
	if !rbac.IsValidRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.OrgID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// caller reads the identity RequireAccessToken put on the context.
func caller(c *gin.Context) (auth.Identity, bool) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil || id.OrgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return auth.Identity{}, false
	}
	return id, true
}

// orgScope resolves the org a request targets. Only admins may look outside
// their own org.
func orgScope(c *gin.Context, id auth.Identity, requested string) (string, bool) {
	if requested == "" || requested == id.OrgID {
		return id.OrgID, true
	}
	if rbac.IsAdmin(id.Role) {
		return requested, true
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	return "", false
}

var statusByCode = map[string]int{
	"not_found":          http.StatusNotFound,
	"conflict":           http.StatusConflict,
	"invalid_transition": http.StatusConflict,
	"unauthorized":       http.StatusForbidden,
	"invalid_request":    http.StatusBadRequest,
}

// fail maps a service error onto a status and the short error code.
func fail(c *gin.Context, err error) {
	code := coordinator.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
