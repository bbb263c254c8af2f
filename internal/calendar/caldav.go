package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/noah-isme/slotbook-api/internal/models"
)

const productID = "-//slotbook//EN"

type basicAuthTransport struct {
	username string
	password string
	next     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("User-Agent", "slotbook/1.0")
	return t.next.RoundTrip(req)
}

// CalDAVCalendar reads and writes VEVENTs in one CalDAV collection.
type CalDAVCalendar struct {
	caldav       *caldav.Client
	webdav       *webdav.Client
	calendarPath string
}

// NewCalDAVFactory returns a Factory for "caldav" connections. A connection
// without a calendar path uses the first calendar of the principal.
func NewCalDAVFactory(base http.RoundTripper) Factory {
	if base == nil {
		base = http.DefaultTransport
	}
	return func(ctx context.Context, conn *models.CalendarConnection) (HostCalendar, error) {
		if conn.CalDAVURL == nil || *conn.CalDAVURL == "" {
			return nil, errors.New("caldav connection without endpoint")
		}
		httpClient := &http.Client{Transport: &basicAuthTransport{
			username: deref(conn.Username),
			password: deref(conn.Password),
			next:     base,
		}}

		cc, err := caldav.NewClient(httpClient, *conn.CalDAVURL)
		if err != nil {
			return nil, fmt.Errorf("create caldav client: %w", err)
		}
		wc, err := webdav.NewClient(httpClient, *conn.CalDAVURL)
		if err != nil {
			return nil, fmt.Errorf("create webdav client: %w", err)
		}

		c := &CalDAVCalendar{caldav: cc, webdav: wc, calendarPath: conn.CalendarID}
		if c.calendarPath == "" {
			if c.calendarPath, err = c.discover(ctx); err != nil {
				return nil, err
			}
		}
		return c, nil
	}
}

func (c *CalDAVCalendar) discover(ctx context.Context) (string, error) {
	principal, err := c.caldav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := c.caldav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home set: %w", err)
	}
	calendars, err := c.caldav.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}
	if len(calendars) == 0 {
		return "", errors.New("caldav principal has no calendars")
	}
	return calendars[0].Path, nil
}

// Busy runs a time-range calendar-query and expands recurring events.
func (c *CalDAVCalendar) Busy(ctx context.Context, from, to time.Time) ([]models.BusyInterval, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:  ical.CompEvent,
				Props: []string{ical.PropUID, ical.PropDateTimeStart, ical.PropDateTimeEnd, ical.PropDuration, ical.PropTransparency, ical.PropStatus, ical.PropRecurrenceRule},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompEvent, Start: from.UTC(), End: to.UTC()}},
		},
	}

	objects, err := c.caldav.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("caldav query: %w", err)
	}

	var busy []models.BusyInterval
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			for _, iv := range eventBusy(ev, from, to) {
				iv.ExternalID = obj.Path
				busy = append(busy, iv)
			}
		}
	}
	return busy, nil
}

func eventBusy(ev ical.Event, from, to time.Time) []models.BusyInterval {
	if p := ev.Props.Get(ical.PropTransparency); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return nil
	}
	if p := ev.Props.Get(ical.PropStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return nil
	}
	start, err := ev.DateTimeStart(time.UTC)
	if err != nil {
		return nil
	}
	end, err := ev.DateTimeEnd(time.UTC)
	if err != nil || !end.After(start) {
		return nil
	}
	length := end.Sub(start)

	set, err := ev.RecurrenceSet(time.UTC)
	if err != nil || set == nil {
		if start.Before(to) && end.After(from) {
			return []models.BusyInterval{{Start: start, End: end, Source: models.BusySourceExternal}}
		}
		return nil
	}

	var busy []models.BusyInterval
	for _, occ := range set.Between(from.Add(-length), to, true) {
		busy = append(busy, models.BusyInterval{Start: occ, End: occ.Add(length), Source: models.BusySourceExternal})
	}
	return busy
}

// Create PUTs a new VEVENT named after the booking id.
func (c *CalDAVCalendar) Create(ctx context.Context, ev Event) (*ExternalEvent, error) {
	objectPath := path.Join(c.calendarPath, ev.BookingID+".ics")
	if _, err := c.caldav.PutCalendarObject(ctx, objectPath, toICal(ev)); err != nil {
		return nil, fmt.Errorf("caldav put event: %w", err)
	}
	return &ExternalEvent{ID: objectPath}, nil
}

// Update replaces the stored VEVENT.
func (c *CalDAVCalendar) Update(ctx context.Context, externalID string, ev Event) error {
	if _, err := c.caldav.PutCalendarObject(ctx, externalID, toICal(ev)); err != nil {
		return fmt.Errorf("caldav update event: %w", err)
	}
	return nil
}

// Delete removes the VEVENT resource.
func (c *CalDAVCalendar) Delete(ctx context.Context, externalID string) error {
	if err := c.webdav.RemoveAll(ctx, externalID); err != nil {
		return fmt.Errorf("caldav delete event: %w", err)
	}
	return nil
}

func toICal(ev Event) *ical.Calendar {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, ev.BookingID)
	ve.Props.SetText(ical.PropSummary, ev.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.End.UTC())
	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.InviteeEmail != "" {
		p := ical.NewProp(ical.PropAttendee)
		p.SetText("mailto:" + ev.InviteeEmail)
		if ev.InviteeName != "" {
			p.Params.Set(ical.ParamCommonName, ev.InviteeName)
		}
		ve.Props.Add(p)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, ve)
	return cal
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
