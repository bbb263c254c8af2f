package availability

import (
	"sort"
	"time"

	"github.com/noah-isme/slotbook-api/internal/models"
)

// Slot is a candidate slot projected onto absolute time.
type Slot struct {
	Date  models.LocalDate
	Start time.Time
	End   time.Time
}

// Conflicts reports whether [start, end) overlaps busy once the slot's own
// buffers are applied: start < busy.End+after && end > busy.Start-before.
func Conflicts(start, end time.Time, busy models.BusyInterval, before, after time.Duration) bool {
	return start.Before(busy.End.Add(after)) && end.After(busy.Start.Add(-before))
}

// FirstConflict returns the first busy interval blocking [start, end).
func FirstConflict(start, end time.Time, busy []models.BusyInterval, before, after time.Duration) (models.BusyInterval, bool) {
	for _, b := range busy {
		if Conflicts(start, end, b, before, after) {
			return b, true
		}
	}
	return models.BusyInterval{}, false
}

// FilterFree keeps the slots that conflict with none of busy.
func FilterFree(slots []Slot, busy []models.BusyInterval, before, after time.Duration) []Slot {
	free := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if _, blocked := FirstConflict(s.Start, s.End, busy, before, after); !blocked {
			free = append(free, s)
		}
	}
	return free
}

// MergeBusy concatenates busy sources, drops empty intervals and orders by start.
func MergeBusy(sources ...[]models.BusyInterval) []models.BusyInterval {
	var merged []models.BusyInterval
	for _, src := range sources {
		for _, b := range src {
			if !b.End.After(b.Start) {
				continue
			}
			merged = append(merged, b)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Start.Before(merged[j].Start) })
	return merged
}

// ExcludeBooking drops the internal interval belonging to bookingID.
func ExcludeBooking(busy []models.BusyInterval, bookingID string) []models.BusyInterval {
	if bookingID == "" {
		return busy
	}
	kept := make([]models.BusyInterval, 0, len(busy))
	for _, b := range busy {
		if b.Source == models.BusySourceInternal && b.BookingID == bookingID {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// BusyWindow widens [from, to) so every busy interval that could block a slot
// inside it under the given buffers is covered by a range query.
func BusyWindow(from, to time.Time, before, after time.Duration) (time.Time, time.Time) {
	return from.Add(-after), to.Add(before)
}

// DedupeByStart removes slots whose start instant repeats an earlier slot.
func DedupeByStart(slots []Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	seen := make(map[int64]struct{}, len(slots))
	for _, s := range slots {
		key := s.Start.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
