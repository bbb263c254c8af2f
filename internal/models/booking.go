package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// BookingStatus enumerates booking lifecycle states.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
)

// CancelActor records who cancelled a booking.
type CancelActor string

const (
	CancelledByHost    CancelActor = "host"
	CancelledByInvitee CancelActor = "invitee"
)

// Booking is one reservation of a host's time.
type Booking struct {
	ID                 string         `db:"id" json:"id"`
	EventTypeID        string         `db:"event_type_id" json:"event_type_id"`
	HostID             string         `db:"host_id" json:"host_id"`
	InviteeName        string         `db:"invitee_name" json:"invitee_name"`
	InviteeEmail       string         `db:"invitee_email" json:"invitee_email"`
	InviteeTimezone    string         `db:"invitee_timezone" json:"invitee_timezone"`
	Responses          types.JSONText `db:"responses" json:"responses,omitempty"`
	StartAt            time.Time      `db:"start_at" json:"start_at"`
	EndAt              time.Time      `db:"end_at" json:"end_at"`
	Status             BookingStatus  `db:"status" json:"status"`
	CancelTokenHash    string         `db:"cancel_token_hash" json:"-"`
	CancelledBy        *CancelActor   `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason *string        `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time     `db:"cancelled_at" json:"cancelled_at,omitempty"`
	ExternalEventID    *string        `db:"external_event_id" json:"external_event_id,omitempty"`
	JoinURL            *string        `db:"join_url" json:"join_url,omitempty"`
	RescheduledAt      *time.Time     `db:"rescheduled_at" json:"rescheduled_at,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// Interval returns the booking as a busy interval.
func (b Booking) Interval() BusyInterval {
	return BusyInterval{Start: b.StartAt, End: b.EndAt, Source: BusySourceInternal, BookingID: b.ID}
}

// BookingFilter narrows host booking listings.
type BookingFilter struct {
	HostID   string
	Status   *BookingStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// BusySource identifies where a busy interval came from.
type BusySource string

const (
	BusySourceInternal BusySource = "internal"
	BusySourceExternal BusySource = "external"
)

// BusyInterval is an absolute [Start, End) range during which the host is occupied.
type BusyInterval struct {
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Source    BusySource `json:"source"`
	BookingID string     `json:"booking_id,omitempty"`
	// ExternalID identifies the calendar event behind an external interval.
	ExternalID string `json:"external_id,omitempty"`
}

// CandidateSlot is a host-local [Start, End) range on a single day.
type CandidateSlot struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// CalendarConnection links a host to an external calendar account.
type CalendarConnection struct {
	HostID     string         `db:"host_id"`
	Provider   string         `db:"provider"`
	CalendarID string         `db:"calendar_id"`
	Token      types.JSONText `db:"token"`
	CalDAVURL  *string        `db:"caldav_url"`
	Username   *string        `db:"username"`
	Password   *string        `db:"password"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// Calendar providers.
const (
	ProviderGoogle = "google"
	ProviderCalDAV = "caldav"
)
