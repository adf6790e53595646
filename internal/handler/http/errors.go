package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/service"
)

// HandleServiceError maps service-layer errors onto HTTP statuses.
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotConnected):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAlreadyConnected):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrOtherCoordinatorActive):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrNoRole),
		errors.Is(err, service.ErrInvalidCapacity),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrResetNotConfirmed):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
