package schedule

import "github.com/jwalitptl/appointment-engine/internal/model"

// EnumerateSlots lists slot start times start, start+d, ... for every slot
// that ends at or before end. It returns nil when durationMinutes <= 0 or
// start >= end.
func EnumerateSlots(start, end model.Clock, durationMinutes int) []model.Clock {
	if durationMinutes <= 0 || start >= end {
		return nil
	}
	slots := make([]model.Clock, 0, int(end-start)/durationMinutes)
	for t := start; t.Add(durationMinutes) <= end; t = t.Add(durationMinutes) {
		slots = append(slots, t)
	}
	return slots
}

// IsSlotStart reports whether at is one of EnumerateSlots(start, end, d).
func IsSlotStart(at, start, end model.Clock, durationMinutes int) bool {
	if durationMinutes <= 0 || at < start || at.Add(durationMinutes) > end {
		return false
	}
	return int(at-start)%durationMinutes == 0
}
