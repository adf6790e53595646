package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/service"
)

// ConnectionHandler drives the session lifecycle from the UI.
type ConnectionHandler struct {
	session *service.Session
}

// NewConnectionHandler creates a ConnectionHandler.
func NewConnectionHandler(session *service.Session) *ConnectionHandler {
	if session == nil {
		panic("session cannot be nil for ConnectionHandler")
	}
	return &ConnectionHandler{session: session}
}

// Status returns the current lifecycle state, including the inline
// connect error the UI shows after a failed attempt.
func (h *ConnectionHandler) Status(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, h.session.Status())
}

// Connect hydrates the mirrors and subscribes to the event. A failure
// parks the session in connect_error; the operator retries by calling
// this again.
func (h *ConnectionHandler) Connect(c *gin.Context) {
	if err := h.session.Connect(c.Request.Context()); err != nil {
		// The status payload carries the inline error message either
		// way; the status code distinguishes the double-connect case.
		if err == service.ErrAlreadyConnected {
			HandleServiceError(c, err)
			return
		}
		c.JSON(http.StatusBadGateway, h.session.Status())
		return
	}
	SuccessResponse(c, http.StatusOK, h.session.Status())
}

// Disconnect closes the feed and clears the in-memory mirrors.
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	h.session.Disconnect()
	SuccessResponse(c, http.StatusOK, h.session.Status())
}
