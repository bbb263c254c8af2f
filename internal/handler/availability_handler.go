package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/slotbook-api/internal/dto"
	"github.com/noah-isme/slotbook-api/pkg/response"
)

type availabilityService interface {
	List(ctx context.Context, eventTypeID string, query dto.AvailabilityQuery) (*dto.AvailabilityResponse, error)
}

// AvailabilityHandler exposes public slot browsing.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler builds a new handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// List godoc
// @Summary List available slots
// @Description Slots are a snapshot; booking re-checks availability.
// @Tags Availability
// @Produce json
// @Param id path string true "Event type ID"
// @Param from query string true "First host-local date (YYYY-MM-DD)"
// @Param to query string true "Last host-local date (YYYY-MM-DD)"
// @Param timezone query string false "Invitee IANA time zone"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /event-types/{id}/availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	var query dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, validationError(err, "invalid availability query"))
		return
	}
	result, err := h.service.List(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
