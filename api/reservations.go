package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Domenick1991/airline-backoffice/internal/service/reservation"
)

type ReservationHandler struct {
	service reservation.ReservationUseCase
	logger  *zap.Logger
}

type createReservationRequest struct {
	PassengerIdentification string  `json:"passenger_identification" binding:"required"`
	FlightNumber            string  `json:"flight_number" binding:"required"`
	SeatNumber              *string `json:"seat_number"`
}

type reservationResponse struct {
	ID                      string         `json:"id"`
	ReservationCode         string         `json:"reservation_code"`
	PassengerIdentification string         `json:"passenger_identification"`
	FlightNumber            string         `json:"flight_number"`
	SeatNumber              *string        `json:"seat_number"`
	Status                  string         `json:"status"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
	CheckedInAt             *time.Time     `json:"checked_in_at"`
	PassengerInfo           map[string]any `json:"passenger_info"`
	FlightInfo              map[string]any `json:"flight_info"`
	Warnings                []string       `json:"warnings,omitempty"`
}

func NewReservationHandler(service reservation.ReservationUseCase, logger *zap.Logger) *ReservationHandler {
	return &ReservationHandler{service: service, logger: logger}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.POST("", h.create)
	router.GET("/:code", h.get)
	router.DELETE("/:code", h.cancel)
	router.POST("/:code/cancel", h.cancel)
	router.POST("/:code/check-in", h.checkIn)
	router.POST("/:code/no-show", h.noShow)
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.CreateReservation(c.Request.Context(), reservation.CreateReservationInput{
		PassengerIdentification: req.PassengerIdentification,
		FlightNumber:            req.FlightNumber,
		SeatNumber:              req.SeatNumber,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(result))
}

func (h *ReservationHandler) list(c *gin.Context) {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := queryInt(c, "limit", reservation.DefaultListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, err := h.service.ListReservations(c.Request.Context(), skip, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := make([]reservationResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&reservation.Result{Reservation: &list[i]}))
	}
	c.JSON(http.StatusOK, out)
}

func (h *ReservationHandler) get(c *gin.Context) {
	result, err := h.service.GetReservation(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(result))
}

func (h *ReservationHandler) cancel(c *gin.Context) {
	h.respond(c, h.service.CancelReservation)
}

func (h *ReservationHandler) checkIn(c *gin.Context) {
	h.respond(c, h.service.CheckIn)
}

func (h *ReservationHandler) noShow(c *gin.Context) {
	h.respond(c, h.service.MarkNoShow)
}

func (h *ReservationHandler) respond(c *gin.Context, op func(ctx context.Context, code string) (*reservation.Result, error)) {
	result, err := op(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(result))
}

func toResponse(result *reservation.Result) reservationResponse {
	r := result.Reservation
	return reservationResponse{
		ID:                      r.ID.String(),
		ReservationCode:         r.Code,
		PassengerIdentification: r.PassengerIdentification,
		FlightNumber:            r.FlightNumber,
		SeatNumber:              r.SeatNumber,
		Status:                  string(r.Status),
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
		CheckedInAt:             r.CheckedInAt,
		PassengerInfo:           result.PassengerInfo,
		FlightInfo:              result.FlightInfo,
		Warnings:                result.Warnings,
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
