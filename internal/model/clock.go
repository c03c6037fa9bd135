package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// MinutesPerDay is the exclusive upper bound of a Clock value, except that
// 24:00 is accepted as an end-of-day window boundary.
const MinutesPerDay = 24 * 60

// NewClock builds a Clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" and "HH:MM:SS". Seconds must be zero.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec != 0 {
			return 0, fmt.Errorf("invalid seconds in %q", s)
		}
	}
	if m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return NewClock(h, m), nil
}

// MustParseClock panics on malformed input; for constants and tests.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// Add returns c shifted by the given number of minutes.
func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

// Valid reports whether c lies within [00:00, 24:00].
func (c Clock) Valid() bool { return c >= 0 && c <= MinutesPerDay }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On returns the instant at this clock time on date's calendar day, in loc.
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
}

// ClockOf extracts the time of day from t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the clock in a postgres TIME column.
func (c Clock) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", c.Hour(), c.Minute()), nil
}

// Scan reads postgres TIME values, which lib/pq returns as text.
func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return c.scanString(string(v))
	case string:
		return c.scanString(v)
	case time.Time:
		*c = ClockOf(v)
		return nil
	case nil:
		*c = 0
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Clock", src)
	}
}

func (c *Clock) scanString(s string) error {
	// TIME columns may carry fractional seconds ("08:30:00.000000").
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
