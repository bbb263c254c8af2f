package availability

import (
	"time"

	"github.com/noah-isme/slotbook-api/internal/models"
)

// probeSpan is wide enough to see the offsets on both sides of any single
// transition touching the requested day.
const probeSpan = 30 * time.Hour

// ToInstant resolves a host-local wall-clock time to an absolute instant.
// A repeated wall time resolves to its earlier occurrence. A wall time that
// does not exist resolves to the first instant after the gap.
func ToInstant(date models.LocalDate, minute int, loc *time.Location) time.Time {
	naive := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC).Add(time.Duration(minute) * time.Minute)
	want := naive

	offsets := probeOffsets(naive, loc)

	var best time.Time
	found := false
	for _, off := range offsets {
		candidate := naive.Add(-time.Duration(off) * time.Second)
		if !sameWallClock(candidate.In(loc), want) {
			continue
		}
		if !found || candidate.Before(best) {
			best = candidate
			found = true
		}
	}
	if found {
		return best.In(loc)
	}

	// Nonexistent: interpreting the wall time with the pre-gap offset lands
	// inside the new zone period, whose start is the transition instant.
	shifted := naive.Add(-time.Duration(offsets[0]) * time.Second).In(loc)
	start, _ := shifted.ZoneBounds()
	if start.IsZero() {
		return shifted
	}
	return start.In(loc)
}

// SlotInstant returns the absolute [start, start+duration) of a candidate slot.
func SlotInstant(date models.LocalDate, slot models.CandidateSlot, duration time.Duration, loc *time.Location) (time.Time, time.Time) {
	start := ToInstant(date, slot.StartMinute, loc)
	return start, start.Add(duration)
}

// Present renders an instant in the invitee's zone.
func Present(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t.UTC()
	}
	return t.In(loc)
}

// LoadLocation resolves an IANA name, defaulting to fallback when empty.
func LoadLocation(name string, fallback *time.Location) (*time.Location, error) {
	if name == "" {
		if fallback == nil {
			return time.UTC, nil
		}
		return fallback, nil
	}
	return time.LoadLocation(name)
}

func probeOffsets(naive time.Time, loc *time.Location) []int {
	var offsets []int
	seen := map[int]bool{}
	for _, probe := range []time.Time{naive.Add(-probeSpan), naive, naive.Add(probeSpan)} {
		_, off := probe.In(loc).Zone()
		if !seen[off] {
			seen[off] = true
			offsets = append(offsets, off)
		}
	}
	return offsets
}

func sameWallClock(t, naive time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := naive.Date()
	return y1 == y2 && m1 == m2 && d1 == d2 && t.Hour() == naive.Hour() && t.Minute() == naive.Minute()
}
