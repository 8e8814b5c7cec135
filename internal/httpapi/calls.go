package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"signaling-platform/internal/auth"
	"signaling-platform/internal/calls"
	"signaling-platform/internal/coordinator"
	"signaling-platform/internal/rbac"
	"signaling-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

type initiateRequest struct {
	OrgID         string   `json:"orgId"`
	TargetStaffID string   `json:"targetStaffId"`
	Department    string   `json:"department"`
	Purpose       string   `json:"purpose"`
	Name          string   `json:"name"`
	Skills        []string `json:"skills"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// InitiateCall routes a new call for the calling client. A call nobody could
// take is reported as 503 with its id so the client can show it as missed.
func (h Handlers) InitiateCall(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req initiateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	org, ok := orgScope(c, id, req.OrgID)
	if !ok {
		return
	}

	res, err := h.Calls.Initiate(c.Request.Context(), coordinator.InitiateRequest{
		ClientID:      id.UserID,
		OrgID:         org,
		TargetStaffID: req.TargetStaffID,
		Department:    req.Department,
		Purpose:       req.Purpose,
		ClientName:    req.Name,
		Skills:        req.Skills,
	})
	if err != nil {
		fail(c, err)
		return
	}
	if res.Status == calls.StatusMissed {
		c.JSON(http.StatusServiceUnavailable, gin.H{"callId": res.CallID, "status": res.Status, "error": coordinator.ReasonNoStaff})
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h Handlers) AcceptCall(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	call, err := h.Calls.Accept(c.Request.Context(), c.Param("id"), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) DeclineCall(c *gin.Context) {
	h.withReason(c, h.Calls.Decline)
}

func (h Handlers) CancelCall(c *gin.Context) {
	h.withReason(c, byUser(h.Calls.Cancel))
}

func (h Handlers) EndCall(c *gin.Context) {
	h.withReason(c, byUser(h.Calls.End))
}

type reasonAction func(ctx context.Context, callID string, actor auth.Identity, reason string) (calls.Call, error)

// byUser adapts actions that only need the caller's user id.
func byUser(act func(ctx context.Context, callID, userID, reason string) (calls.Call, error)) reasonAction {
	return func(ctx context.Context, callID string, actor auth.Identity, reason string) (calls.Call, error) {
		return act(ctx, callID, actor.UserID, reason)
	}
}

func (h Handlers) withReason(c *gin.Context, act reasonAction) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req reasonRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	call, err := act(c.Request.Context(), c.Param("id"), id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// GetCall returns the call and its participants. Calls of another org are
// reported as missing unless the caller is an admin.
func (h Handlers) GetCall(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	view, err := h.Calls.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !rbac.SameOrg(id.Role, id.OrgID, view.Call.OrgID) {
		fail(c, calls.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CallEvents lists the audit trail of one call.
func (h Handlers) CallEvents(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !rbac.SameOrg(id.Role, id.OrgID, call.OrgID) {
		fail(c, calls.ErrNotFound)
		return
	}
	events, err := h.Audit.CallHistory(c.Request.Context(), call.OrgID, call.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// CallsSummary aggregates the caller's org over [from, to). Both bounds are
// RFC 3339; the default window is the last 24 hours.
func (h Handlers) CallsSummary(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	org, ok := orgScope(c, id, c.Query("orgId"))
	if !ok {
		return
	}
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		to = t
	}

	sum, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		OrgID: org,
		Range: reporting.TimeRange{From: from, To: to},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
