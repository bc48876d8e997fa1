package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Domenick1991/airline-backoffice/internal/service/reservation"
)

// statusFor maps reservation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, reservation.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, reservation.ErrFlightNotFound),
		errors.Is(err, reservation.ErrPassengerNotFound),
		errors.Is(err, reservation.ErrReservationNotFound):
		return http.StatusNotFound
	case errors.Is(err, reservation.ErrDuplicateReservation),
		errors.Is(err, reservation.ErrInvalidTransition),
		errors.Is(err, reservation.ErrSeatConflict):
		return http.StatusConflict
	case errors.Is(err, reservation.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
