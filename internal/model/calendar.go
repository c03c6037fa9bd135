package model

import (
	"fmt"
	"time"
)

// DayOfWeek follows the schedule encoding: 0=Sunday … 6=Saturday.
type DayOfWeek int

const (
	Sunday DayOfWeek = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// DayOfWeekOf is the one place a calendar date is mapped onto the schedule
// encoding. Every lookup of a weekly rule goes through it.
func DayOfWeekOf(date time.Time) DayOfWeek {
	// time.Weekday already counts from Sunday=0.
	return DayOfWeek(date.Weekday())
}

// DayOfWeekFromISO converts ISO-8601 numbering (1=Monday … 7=Sunday).
func DayOfWeekFromISO(iso int) (DayOfWeek, error) {
	if iso < 1 || iso > 7 {
		return 0, fmt.Errorf("iso weekday %d out of range 1..7", iso)
	}
	return DayOfWeek(iso % 7), nil
}

// ISO returns the ISO-8601 weekday number (1=Monday … 7=Sunday).
func (d DayOfWeek) ISO() int {
	if d == Sunday {
		return 7
	}
	return int(d)
}

func (d DayOfWeek) Valid() bool { return d >= Sunday && d <= Saturday }

func (d DayOfWeek) String() string {
	if !d.Valid() {
		return fmt.Sprintf("DayOfWeek(%d)", int(d))
	}
	return time.Weekday(d).String()
}

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Date normalises t to its calendar day at midnight UTC. Dates are compared
// and stored in this form throughout.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a normalised date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// SameDate compares calendar days regardless of time or zone offset.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
