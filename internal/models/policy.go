package models

import (
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"
)

// RangeType selects how far ahead a schedule may be booked.
type RangeType string

const (
	RangeRolling    RangeType = "ROLLING"
	RangeFixed      RangeType = "RANGE"
	RangeIndefinite RangeType = "INDEFINITE"
)

// MinutesPerDay is the exclusive upper bound of a host-local day range.
const MinutesPerDay = 24 * 60

// LocalDate is a calendar date without a zone.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseLocalDate parses YYYY-MM-DD.
func ParseLocalDate(raw string) (LocalDate, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return LocalDate{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return DateOf(t), nil
}

// DateOf returns the wall-clock date of t in its own location.
func DateOf(t time.Time) LocalDate {
	y, m, d := t.Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

func (d LocalDate) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days later (or earlier for negative n).
func (d LocalDate) AddDays(n int) LocalDate {
	return DateOf(d.midnightUTC().AddDate(0, 0, n))
}

// Weekday of the date.
func (d LocalDate) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

// Before reports whether d is strictly earlier than o.
func (d LocalDate) Before(o LocalDate) bool {
	return d.midnightUTC().Before(o.midnightUTC())
}

// After reports whether d is strictly later than o.
func (d LocalDate) After(o LocalDate) bool {
	return d.midnightUTC().After(o.midnightUTC())
}

// DaysUntil counts whole days from d to o.
func (d LocalDate) DaysUntil(o LocalDate) int {
	return int(o.midnightUTC().Sub(d.midnightUTC()).Hours() / 24)
}

// IsZero reports whether the date is unset.
func (d LocalDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText renders YYYY-MM-DD.
func (d LocalDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses YYYY-MM-DD.
func (d *LocalDate) UnmarshalText(b []byte) error {
	parsed, err := ParseLocalDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DayRange is a host-local [Start, End) range in minutes after midnight.
type DayRange struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Valid reports whether the range sits inside a single day and is non-empty.
func (r DayRange) Valid() bool {
	return r.StartMinute >= 0 && r.EndMinute <= MinutesPerDay && r.StartMinute < r.EndMinute
}

// WeeklyAvailability holds ordered ranges indexed by time.Weekday.
type WeeklyAvailability [7][]DayRange

// For returns the ranges of the given weekday ordered by start.
func (w WeeklyAvailability) For(day time.Weekday) []DayRange {
	ranges := append([]DayRange(nil), w[day]...)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].StartMinute < ranges[j].StartMinute })
	return ranges
}

// RangePolicy bounds the bookable dates.
type RangePolicy struct {
	Type        RangeType  `json:"type"`
	RollingDays int        `json:"rolling_days,omitempty"`
	StartDate   *LocalDate `json:"start_date,omitempty"`
	EndDate     *LocalDate `json:"end_date,omitempty"`
}

// SchedulePolicy is the normalised, read-only booking configuration of one event type.
type SchedulePolicy struct {
	EventTypeID       string             `json:"event_type_id"`
	HostID            string             `json:"host_id"`
	Title             string             `json:"title"`
	Weekly            WeeklyAvailability `json:"weekly"`
	Duration          time.Duration      `json:"duration"`
	Interval          time.Duration      `json:"interval"`
	BufferBefore      time.Duration      `json:"buffer_before"`
	BufferAfter       time.Duration      `json:"buffer_after"`
	MinNotice         time.Duration      `json:"min_notice"`
	Range             RangePolicy        `json:"range"`
	Timezone          string             `json:"timezone"`
	MaxBookingsPerDay *int               `json:"max_bookings_per_day,omitempty"`
	Location          *time.Location     `json:"-"`
}

// Loc returns the host location, loading it from Timezone when needed.
func (p *SchedulePolicy) Loc() (*time.Location, error) {
	if p.Location != nil {
		return p.Location, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load host timezone %q: %w", p.Timezone, err)
	}
	p.Location = loc
	return loc, nil
}

// EventType is the persisted row behind a SchedulePolicy.
type EventType struct {
	ID                  string     `db:"id"`
	HostID              string     `db:"host_id"`
	Slug                string     `db:"slug"`
	Title               string     `db:"title"`
	DurationMinutes     int        `db:"duration_minutes"`
	IntervalMinutes     *int       `db:"slot_interval_minutes"`
	BufferBeforeMinutes int        `db:"buffer_before_minutes"`
	BufferAfterMinutes  int        `db:"buffer_after_minutes"`
	MinNoticeMinutes    int        `db:"min_notice_minutes"`
	RangeType           string     `db:"range_type"`
	RollingDays         *int       `db:"rolling_days"`
	RangeStart          *time.Time `db:"range_start"`
	RangeEnd            *time.Time `db:"range_end"`
	Timezone            string     `db:"timezone"`
	MaxBookingsPerDay   *int       `db:"max_bookings_per_day"`
	Active              bool       `db:"active"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// AvailabilityWindow is one persisted weekly range of an event type.
type AvailabilityWindow struct {
	EventTypeID string `db:"event_type_id"`
	DayOfWeek   int    `db:"day_of_week"`
	StartMinute int    `db:"start_minute"`
	EndMinute   int    `db:"end_minute"`
}
