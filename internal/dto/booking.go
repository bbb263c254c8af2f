package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/slotbook-api/internal/models"
)

// CreateBookingRequest defines the payload for booking a slot.
type CreateBookingRequest struct {
	EventTypeID     string          `json:"-"`
	Start           time.Time       `json:"start" validate:"required"`
	InviteeName     string          `json:"inviteeName" validate:"required,max=200"`
	InviteeEmail    string          `json:"inviteeEmail" validate:"required,email"`
	InviteeTimezone string          `json:"inviteeTimezone" validate:"omitempty,max=64"`
	Responses       json.RawMessage `json:"responses,omitempty"`
}

// CreateBookingResponse returns the booking and the one-time cancel token.
type CreateBookingResponse struct {
	Booking     *models.Booking `json:"booking"`
	CancelToken string          `json:"cancelToken"`
}

// CancelBookingRequest defines the cancel payload. Invitees authenticate with CancelToken.
type CancelBookingRequest struct {
	Reason      *string `json:"reason,omitempty" validate:"omitempty,max=1000"`
	CancelToken string  `json:"cancelToken,omitempty"`
}

// RescheduleBookingRequest moves a booking to a new start.
type RescheduleBookingRequest struct {
	Start time.Time `json:"start" validate:"required"`
}

// ListBookingsQuery filters a host's booking listing.
type ListBookingsQuery struct {
	From     string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	Status   string `form:"status" validate:"omitempty,oneof=confirmed cancelled completed no_show"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=200"`
	Format   string `form:"format" validate:"omitempty,oneof=csv pdf"`
	Timezone string `form:"timezone" validate:"omitempty,max=64"`
}

// ExportFile is a rendered agenda ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
