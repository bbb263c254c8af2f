package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/slotbook-api/internal/models"
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// parseWindows reads "mon=09:00-17:00" entries. "24:00" closes a day.
func parseWindows(raw []string) ([]models.AvailabilityWindow, error) {
	windows := make([]models.AvailabilityWindow, 0, len(raw))
	for _, entry := range raw {
		day, span, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("window %q: want day=HH:MM-HH:MM", entry)
		}
		name := strings.ToLower(strings.TrimSpace(day))
		if len(name) > 3 {
			name = name[:3]
		}
		weekday, ok := weekdays[name]
		if !ok {
			return nil, fmt.Errorf("window %q: unknown weekday", entry)
		}
		from, to, ok := strings.Cut(span, "-")
		if !ok {
			return nil, fmt.Errorf("window %q: want day=HH:MM-HH:MM", entry)
		}
		start, err := parseClock(from)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", entry, err)
		}
		end, err := parseClock(to)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", entry, err)
		}
		r := models.DayRange{StartMinute: start, EndMinute: end}
		if !r.Valid() {
			return nil, fmt.Errorf("window %q: end must follow start within one day", entry)
		}
		windows = append(windows, models.AvailabilityWindow{DayOfWeek: int(weekday), StartMinute: start, EndMinute: end})
	}
	return windows, nil
}

func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" {
		return models.MinutesPerDay, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
