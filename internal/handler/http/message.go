package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/service"
)

// MessageHandler serves the station message log.
type MessageHandler struct {
	session *service.Session
	log     *service.LogService
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(session *service.Session, log *service.LogService) *MessageHandler {
	if session == nil || log == nil {
		panic("session and log service cannot be nil for MessageHandler")
	}
	return &MessageHandler{session: session, log: log}
}

// ListMessages returns the mirrored log, oldest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{"messages": h.log.Messages()})
}

// SendMessageRequest is the body of a message send.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage appends a message stamped with this device's station.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: text is required")
		return
	}

	msg, err := h.session.SendMessage(c.Request.Context(), req.Text)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"message_id": msg.ID, "station": msg.Station}).Info("Message sent")
	SuccessResponse(c, http.StatusOK, msg)
}

// ResetRequest is the body of a full reset. Confirmation must be the
// exact phrase "RESET"; anything else makes the whole request a no-op.
type ResetRequest struct {
	Confirmation string `json:"confirmation" binding:"required"`
}

// FullReset zeroes the counter and wipes the log after confirmation.
func (h *MessageHandler) FullReset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: confirmation is required")
		return
	}

	if err := h.session.FullReset(c.Request.Context(), req.Confirmation); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Event reset"})
}
