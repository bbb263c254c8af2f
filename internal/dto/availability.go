package dto

import "time"

// AvailabilityQuery carries the browse window for an event type.
type AvailabilityQuery struct {
	From     string `form:"from" validate:"required,datetime=2006-01-02"`
	To       string `form:"to" validate:"required,datetime=2006-01-02"`
	Timezone string `form:"timezone" validate:"omitempty,max=64"`
}

// AvailableSlot is one bookable slot. Start/End are UTC; the Local fields are
// the same instants rendered in the invitee's zone.
type AvailableSlot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	LocalStart time.Time `json:"localStart"`
	LocalEnd   time.Time `json:"localEnd"`
}

// AvailabilityDay groups the slots of one host-local date.
type AvailabilityDay struct {
	Date  string          `json:"date"`
	Slots []AvailableSlot `json:"slots"`
}

// AvailabilityResponse lists availability across the requested dates.
type AvailabilityResponse struct {
	EventTypeID     string            `json:"eventTypeId"`
	HostTimezone    string            `json:"hostTimezone"`
	InviteeTimezone string            `json:"inviteeTimezone"`
	DurationMinutes int               `json:"durationMinutes"`
	Days            []AvailabilityDay `json:"days"`
}
