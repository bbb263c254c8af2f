package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/slotbook-api/internal/dto"
	"github.com/noah-isme/slotbook-api/internal/middleware"
	"github.com/noah-isme/slotbook-api/internal/models"
	"github.com/noah-isme/slotbook-api/internal/service"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
	"github.com/noah-isme/slotbook-api/pkg/response"
)

type bookingService interface {
	Create(ctx context.Context, req dto.CreateBookingRequest) (*dto.CreateBookingResponse, error)
	Cancel(ctx context.Context, bookingID string, actor models.CancelActor, reason *string, proof service.AuthProof) (*models.Booking, error)
	Reschedule(ctx context.Context, bookingID string, newStart time.Time, hostID string) (*models.Booking, error)
	Get(ctx context.Context, bookingID, hostID string) (*models.Booking, error)
	ListByHost(ctx context.Context, hostID string, query dto.ListBookingsQuery) ([]models.Booking, *models.Pagination, error)
}

type agendaExporter interface {
	Agenda(ctx context.Context, hostID string, query dto.ListBookingsQuery) (*dto.ExportFile, error)
}

// BookingHandler exposes booking lifecycle endpoints.
type BookingHandler struct {
	service  bookingService
	exporter agendaExporter
}

// NewBookingHandler builds a new handler.
func NewBookingHandler(service bookingService, exporter agendaExporter) *BookingHandler {
	return &BookingHandler{service: service, exporter: exporter}
}

// Create godoc
// @Summary Book a slot
// @Description Returns the booking and a cancel token that is shown only once.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Event type ID"
// @Param payload body dto.CreateBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /event-types/{id}/bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validationError(err, "invalid booking payload"))
		return
	}
	req.EventTypeID = c.Param("id")
	result, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Cancel godoc
// @Summary Cancel a booking
// @Description Hosts authenticate with a bearer token; invitees send their cancel token.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.CancelBookingRequest false "Cancel payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req dto.CancelBookingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, validationError(err, "invalid cancel payload"))
			return
		}
	}

	actor := models.CancelledByInvitee
	proof := service.AuthProof{Token: req.CancelToken}
	if host := middleware.HostFromContext(c); host != nil {
		actor = models.CancelledByHost
		proof = service.AuthProof{HostID: host.HostID}
	} else if req.CancelToken == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	booking, err := h.service.Cancel(c.Request.Context(), c.Param("id"), actor, req.Reason, proof)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Reschedule godoc
// @Summary Move a booking to a new start
// @Tags Bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Booking ID"
// @Param payload body dto.RescheduleBookingRequest true "New start"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /bookings/{id}/reschedule [post]
func (h *BookingHandler) Reschedule(c *gin.Context) {
	hostID, err := hostIDFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RescheduleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validationError(err, "invalid reschedule payload"))
		return
	}
	booking, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), req.Start, hostID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Get godoc
// @Summary Get one of the host's bookings
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	hostID, err := hostIDFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	booking, err := h.service.Get(c.Request.Context(), c.Param("id"), hostID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// List godoc
// @Summary List the host's bookings
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param from query string false "From date (YYYY-MM-DD, UTC)"
// @Param to query string false "To date (YYYY-MM-DD, UTC, inclusive)"
// @Param status query string false "confirmed, cancelled, completed or no_show"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /hosts/me/bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	hostID, err := hostIDFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var query dto.ListBookingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, validationError(err, "invalid booking filter"))
		return
	}
	items, pagination, err := h.service.ListByHost(c.Request.Context(), hostID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Export godoc
// @Summary Export the host's agenda
// @Tags Bookings
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Param timezone query string false "Display time zone"
// @Success 200 {file} file
// @Router /hosts/me/bookings/export [get]
func (h *BookingHandler) Export(c *gin.Context) {
	hostID, err := hostIDFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var query dto.ListBookingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, validationError(err, "invalid export filter"))
		return
	}
	file, err := h.exporter.Agenda(c.Request.Context(), hostID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Content)
}
