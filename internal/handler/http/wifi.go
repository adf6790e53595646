package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/service"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/wifi"
)

// WifiHandler renders the venue WiFi credentials as a QR image.
type WifiHandler struct {
	state *service.StateService
}

// NewWifiHandler creates a WifiHandler.
func NewWifiHandler(state *service.StateService) *WifiHandler {
	if state == nil {
		panic("state service cannot be nil for WifiHandler")
	}
	return &WifiHandler{state: state}
}

// QRImage returns a PNG of the WIFI: payload for the current
// credentials. Optional ?size= sets the edge length in pixels.
func (h *WifiHandler) QRImage(c *gin.Context) {
	size := 256
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 64 || parsed > 2048 {
			ErrorResponse(c, http.StatusBadRequest, "Invalid size: must be an integer between 64 and 2048")
			return
		}
		size = parsed
	}

	snap := h.state.Snapshot()
	png, err := wifi.QRPNG(snap.WifiSSID, snap.WifiPassword, size)
	if err != nil {
		if errors.Is(err, wifi.ErrNoCredentials) {
			ErrorResponse(c, http.StatusNotFound, "No WiFi credentials configured")
			return
		}
		logrus.WithError(err).Error("Failed to render WiFi QR image")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to render QR image")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
