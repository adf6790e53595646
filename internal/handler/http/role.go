package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/presence"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/service"
)

// RoleHandler serves role selection and the presence view.
type RoleHandler struct {
	session *service.Session
	tracker *presence.Tracker
}

// NewRoleHandler creates a RoleHandler.
func NewRoleHandler(session *service.Session, tracker *presence.Tracker) *RoleHandler {
	if session == nil || tracker == nil {
		panic("session and tracker cannot be nil for RoleHandler")
	}
	return &RoleHandler{session: session, tracker: tracker}
}

// GetPresence returns every known presence record plus the advisory
// coordinator check the selection UI keys on.
func (h *RoleHandler) GetPresence(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{
		"members":                  h.tracker.Members(),
		"other_coordinator_active": h.tracker.OtherCoordinatorActive(),
	})
}

// SetRoleRequest is the body of a role change. An empty role drops
// back to unassigned.
type SetRoleRequest struct {
	Role string `json:"role"`
}

// SetRole announces this device's new role.
func (h *RoleHandler) SetRole(c *gin.Context) {
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input")
		return
	}

	if err := h.session.SetRole(c.Request.Context(), req.Role); err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithField("role", req.Role).Info("Role announced")
	SuccessResponse(c, http.StatusOK, gin.H{"role": req.Role})
}
