package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/noah-isme/slotbook-api/internal/models"
	"github.com/noah-isme/slotbook-api/pkg/config"
)

const bookingIDProperty = "booking_id"

// GoogleCalendar reads free/busy and writes events in one Google calendar.
type GoogleCalendar struct {
	service    *gcal.Service
	calendarID string
	meetLinks  bool
}

// NewGoogleFactory returns a Factory for "google" connections whose stored
// token is a JSON-encoded oauth2.Token.
func NewGoogleFactory(cfg config.CalendarConfig) Factory {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope},
	}
	return func(ctx context.Context, conn *models.CalendarConnection) (HostCalendar, error) {
		var token oauth2.Token
		if err := json.Unmarshal(conn.Token, &token); err != nil {
			return nil, fmt.Errorf("decode google token: %w", err)
		}
		service, err := gcal.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, &token)))
		if err != nil {
			return nil, fmt.Errorf("create google calendar service: %w", err)
		}
		calendarID := conn.CalendarID
		if calendarID == "" {
			calendarID = cfg.DefaultCalendarID
		}
		return &GoogleCalendar{service: service, calendarID: calendarID, meetLinks: cfg.CreateMeetLinks}, nil
	}
}

// Busy lists the calendar's expanded events in [from, to). Each interval
// keeps its event id and the booking id stamped on events this service created.
func (g *GoogleCalendar) Busy(ctx context.Context, from, to time.Time) ([]models.BusyInterval, error) {
	var busy []models.BusyInterval
	err := g.service.Events.List(g.calendarID).
		TimeMin(from.UTC().Format(time.RFC3339)).
		TimeMax(to.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		MaxResults(250).
		Pages(ctx, func(page *gcal.Events) error {
			loc := time.UTC
			if page.TimeZone != "" {
				if l, err := time.LoadLocation(page.TimeZone); err == nil {
					loc = l
				}
			}
			for _, item := range page.Items {
				if iv, ok := googleBusy(item, loc); ok {
					busy = append(busy, iv)
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("google list events: %w", err)
	}
	return busy, nil
}

// googleBusy converts an event into a busy interval. Free, cancelled and
// declined events do not block time. All-day dates are read in loc.
func googleBusy(item *gcal.Event, loc *time.Location) (models.BusyInterval, bool) {
	if item == nil || item.Status == "cancelled" || item.Transparency == "transparent" {
		return models.BusyInterval{}, false
	}
	for _, a := range item.Attendees {
		if a.Self && a.ResponseStatus == "declined" {
			return models.BusyInterval{}, false
		}
	}
	start, ok := googleTime(item.Start, loc)
	if !ok {
		return models.BusyInterval{}, false
	}
	end, ok := googleTime(item.End, loc)
	if !ok || !end.After(start) {
		return models.BusyInterval{}, false
	}
	iv := models.BusyInterval{Start: start, End: end, Source: models.BusySourceExternal, ExternalID: item.Id}
	if item.ExtendedProperties != nil {
		iv.BookingID = item.ExtendedProperties.Private[bookingIDProperty]
	}
	return iv, true
}

func googleTime(t *gcal.EventDateTime, loc *time.Location) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		return parsed.UTC(), err == nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", t.Date, loc)
	return parsed.UTC(), err == nil
}

// Create inserts the event, requesting a Meet conference when enabled.
func (g *GoogleCalendar) Create(ctx context.Context, ev Event) (*ExternalEvent, error) {
	event := g.toGoogle(ev)
	call := g.service.Events.Insert(g.calendarID, event).SendUpdates("all")
	if g.meetLinks {
		event.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             ev.BookingID,
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google insert event: %w", err)
	}
	return &ExternalEvent{ID: created.Id, JoinURL: joinURL(created)}, nil
}

// Update moves the event to the booking's new time.
func (g *GoogleCalendar) Update(ctx context.Context, externalID string, ev Event) error {
	patch := &gcal.Event{
		Start: eventTime(ev.Start, ev.Timezone),
		End:   eventTime(ev.End, ev.Timezone),
	}
	if _, err := g.service.Events.Patch(g.calendarID, externalID, patch).SendUpdates("all").Context(ctx).Do(); err != nil {
		return fmt.Errorf("google patch event: %w", err)
	}
	return nil
}

// Delete removes the event.
func (g *GoogleCalendar) Delete(ctx context.Context, externalID string) error {
	if err := g.service.Events.Delete(g.calendarID, externalID).SendUpdates("all").Context(ctx).Do(); err != nil {
		return fmt.Errorf("google delete event: %w", err)
	}
	return nil
}

func (g *GoogleCalendar) toGoogle(ev Event) *gcal.Event {
	event := &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Start:       eventTime(ev.Start, ev.Timezone),
		End:         eventTime(ev.End, ev.Timezone),
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{bookingIDProperty: ev.BookingID},
		},
	}
	if ev.InviteeEmail != "" {
		event.Attendees = []*gcal.EventAttendee{{Email: ev.InviteeEmail, DisplayName: ev.InviteeName}}
	}
	return event
}

func eventTime(t time.Time, tz string) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.UTC().Format(time.RFC3339), TimeZone: tz}
}

func joinURL(ev *gcal.Event) *string {
	if ev.HangoutLink != "" {
		link := ev.HangoutLink
		return &link
	}
	if ev.ConferenceData == nil {
		return nil
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if ep.EntryPointType == "video" && ep.Uri != "" {
			link := ep.Uri
			return &link
		}
	}
	return nil
}
