package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/service"
)

// StateHandler serves the shared event state and its mutations.
type StateHandler struct {
	session *service.Session
	state   *service.StateService
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(session *service.Session, state *service.StateService) *StateHandler {
	if session == nil || state == nil {
		panic("session and state service cannot be nil for StateHandler")
	}
	return &StateHandler{session: session, state: state}
}

// StateResponse is the full event-state view, with the derived
// occupancy values the station cards render.
type StateResponse struct {
	DoorCount        int    `json:"door_count"`
	Capacity         int    `json:"capacity"`
	WifiSSID         string `json:"wifi_ssid"`
	OccupancyPercent int    `json:"occupancy_percent"`
	OverCapacity     bool   `json:"over_capacity"`
}

// GetState returns the local mirror. Works in every connection state;
// while disconnected it simply shows the cleared defaults.
func (h *StateHandler) GetState(c *gin.Context) {
	snap := h.state.Snapshot()
	SuccessResponse(c, http.StatusOK, StateResponse{
		DoorCount:        snap.DoorCount,
		Capacity:         snap.Capacity,
		WifiSSID:         snap.WifiSSID,
		OccupancyPercent: snap.OccupancyPercent(),
		OverCapacity:     snap.OverCapacity(),
	})
}

// AdjustCountRequest is the body of a counter mutation.
type AdjustCountRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// AdjustCount applies a door-counter delta.
func (h *StateHandler) AdjustCount(c *gin.Context) {
	var req AdjustCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: delta is required")
		return
	}

	count, err := h.session.AdjustDoorCount(c.Request.Context(), req.Delta)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"delta": req.Delta, "door_count": count}).Debug("Door count adjusted")
	snap := h.state.Snapshot()
	SuccessResponse(c, http.StatusOK, gin.H{
		"door_count":    count,
		"over_capacity": snap.OverCapacity(),
	})
}

// SetCapacityRequest is the body of a capacity update.
type SetCapacityRequest struct {
	Capacity int `json:"capacity" binding:"required"`
}

// SetCapacity updates the venue capacity.
func (h *StateHandler) SetCapacity(c *gin.Context) {
	var req SetCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: capacity is required")
		return
	}

	if err := h.session.SetCapacity(c.Request.Context(), req.Capacity); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"capacity": req.Capacity})
}

// SetWiFiRequest is the body of a WiFi credential update.
type SetWiFiRequest struct {
	SSID     string `json:"ssid" binding:"required"`
	Password string `json:"password"`
}

// SetWiFi updates the venue WiFi credential pair.
func (h *StateHandler) SetWiFi(c *gin.Context) {
	var req SetWiFiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: ssid is required")
		return
	}

	if err := h.session.SetWiFi(c.Request.Context(), req.SSID, req.Password); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"wifi_ssid": req.SSID})
}
