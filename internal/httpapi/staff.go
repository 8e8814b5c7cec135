package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"signaling-platform/internal/availability"

	"github.com/gin-gonic/gin"
)

type availabilityRequest struct {
	Status string   `json:"status"`
	OrgID  string   `json:"orgId"`
	Skills []string `json:"skills"`
}

// ListAvailableStaff returns staff free to take a call, newest update first.
func (h Handlers) ListAvailableStaff(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	org, ok := orgScope(c, id, c.Query("orgId"))
	if !ok {
		return
	}
	var skills []string
	if v := c.Query("skills"); v != "" {
		skills = strings.Split(v, ",")
	}
	staff, err := h.Staff.FindAvailable(c.Request.Context(), org, skills)
	if err != nil {
		fail(c, err)
		return
	}
	if staff == nil {
		staff = []availability.Availability{}
	}
	c.JSON(http.StatusOK, gin.H{"staff": staff})
}

// SetAvailability updates the calling staff member's own row.
func (h Handlers) SetAvailability(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	org, ok := orgScope(c, id, req.OrgID)
	if !ok {
		return
	}

	out, err := h.Staff.SetAvailability(c.Request.Context(), id.UserID, org, availability.Status(req.Status), req.Skills)
	switch {
	case errors.Is(err, availability.ErrInvalidStatus), errors.Is(err, availability.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "availability": out})
}
