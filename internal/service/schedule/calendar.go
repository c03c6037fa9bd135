package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
)

// Reasons a day resolves to closed.
const (
	ClosedHoliday = "holiday"
	ClosedNoRule  = "no_rule"
)

// RecurringMatch decides which dates a yearly-recurring holiday closes.
type RecurringMatch string

const (
	// MatchWeekday closes every date sharing the holiday's weekday. This is
	// how recurring holidays have always been evaluated; keep it until the
	// product owners confirm the intended rule.
	MatchWeekday RecurringMatch = "weekday"
	// MatchAnniversary closes the same month and day every year.
	MatchAnniversary RecurringMatch = "anniversary"
)

func ParseRecurringMatch(s string) (RecurringMatch, error) {
	switch RecurringMatch(s) {
	case MatchWeekday, MatchAnniversary:
		return RecurringMatch(s), nil
	case "":
		return MatchWeekday, nil
	}
	return "", fmt.Errorf("unknown recurring holiday match %q", s)
}

// Window is the effective working window of one branch on one date.
type Window struct {
	Date                time.Time
	Open                bool
	ClosedReason        string
	HolidayName         string
	Start               model.Clock
	End                 model.Clock
	SlotDurationMinutes int
	CapacityPerSlot     int
	// TotalSlots and AvailableSlots are reporting figures. An override
	// replaces them; otherwise TotalSlots is slots x capacity and
	// AvailableSlots is left for the availability index to fill.
	TotalSlots     int
	AvailableSlots int
	Overridden     bool
}

// Slots enumerates the window's slot start times.
func (w Window) Slots() []model.Clock {
	if !w.Open {
		return nil
	}
	return EnumerateSlots(w.Start, w.End, w.SlotDurationMinutes)
}

// Calendar resolves branch working windows from rules, holidays and
// capacity overrides.
type Calendar struct {
	rules     repository.ScheduleRuleRepository
	holidays  repository.HolidayRepository
	overrides repository.OverrideRepository
	match     RecurringMatch
	log       *logger.Logger
}

func NewCalendar(
	rules repository.ScheduleRuleRepository,
	holidays repository.HolidayRepository,
	overrides repository.OverrideRepository,
	match RecurringMatch,
	log *logger.Logger,
) *Calendar {
	if match == "" {
		match = MatchWeekday
	}
	return &Calendar{
		rules:     rules,
		holidays:  holidays,
		overrides: overrides,
		match:     match,
		log:       log.With("calendar"),
	}
}

// Resolve returns the window of a single date.
func (c *Calendar) Resolve(ctx context.Context, branchID uuid.UUID, date time.Time, serviceTypeID *uuid.UUID) (Window, error) {
	bc, err := c.Load(ctx, branchID, date, 1, serviceTypeID)
	if err != nil {
		return Window{}, err
	}
	return bc.Window(date), nil
}

// Load fetches everything needed to resolve days consecutive dates from
// from onward, in three queries.
func (c *Calendar) Load(ctx context.Context, branchID uuid.UUID, from time.Time, days int, serviceTypeID *uuid.UUID) (*BranchCalendar, error) {
	if days < 1 {
		days = 1
	}
	from = model.Date(from)
	to := from.AddDate(0, 0, days-1)

	rules, err := c.rules.ListByBranch(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule rules: %w", err)
	}
	holidays, err := c.holidays.ListCandidates(ctx, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load holidays: %w", err)
	}
	overrides, err := c.overrides.ListRange(ctx, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load capacity overrides: %w", err)
	}

	bc := &BranchCalendar{
		BranchID:      branchID,
		serviceTypeID: serviceTypeID,
		rules:         make(map[model.DayOfWeek]*model.WeeklyScheduleRule),
		match:         c.match,
		log:           c.log,
	}
	for _, r := range rules {
		if !r.Live() {
			continue
		}
		// Only one active rule per day is allowed; if the data says
		// otherwise, the earliest window wins.
		if cur, ok := bc.rules[r.DayOfWeek]; !ok || r.StartTime < cur.StartTime {
			bc.rules[r.DayOfWeek] = r
		}
	}
	for _, h := range holidays {
		if h.Live() {
			bc.holidays = append(bc.holidays, h)
		}
	}
	for _, o := range overrides {
		if !o.IsDeleted && o.IsOverride && o.AppliesTo(serviceTypeID) {
			bc.overrides = append(bc.overrides, o)
		}
	}
	return bc, nil
}

// BranchCalendar is an in-memory snapshot of one branch's calendar data.
type BranchCalendar struct {
	BranchID      uuid.UUID
	serviceTypeID *uuid.UUID
	rules         map[model.DayOfWeek]*model.WeeklyScheduleRule
	holidays      []*model.HolidayException
	overrides     []*model.DailyCapacityOverride
	match         RecurringMatch
	log           *logger.Logger
}

func (bc *BranchCalendar) holidayOn(date time.Time) *model.HolidayException {
	var recurring *model.HolidayException
	for _, h := range bc.holidays {
		if model.SameDate(h.HolidayDate, date) {
			return h
		}
		if h.IsRecurringYearly && recurring == nil && bc.recurs(h, date) {
			recurring = h
		}
	}
	if recurring != nil {
		bc.log.Debug("recurring holiday closes date",
			"branch_id", bc.BranchID,
			"holiday", recurring.Name,
			"date", date.Format(model.DateLayout),
			"match", string(bc.match))
	}
	return recurring
}

func (bc *BranchCalendar) recurs(h *model.HolidayException, date time.Time) bool {
	if bc.match == MatchAnniversary {
		return h.HolidayDate.Month() == date.Month() && h.HolidayDate.Day() == date.Day()
	}
	return model.DayOfWeekOf(h.HolidayDate) == model.DayOfWeekOf(date)
}

// overrideOn picks the service-specific override over the all-services one.
func (bc *BranchCalendar) overrideOn(date time.Time) *model.DailyCapacityOverride {
	var general *model.DailyCapacityOverride
	for _, o := range bc.overrides {
		if !model.SameDate(o.OverrideDate, date) {
			continue
		}
		if o.ServiceTypeID != nil {
			return o
		}
		general = o
	}
	return general
}

// Window resolves one date from the snapshot.
func (bc *BranchCalendar) Window(date time.Time) Window {
	date = model.Date(date)
	w := Window{Date: date}

	if h := bc.holidayOn(date); h != nil {
		w.ClosedReason = ClosedHoliday
		w.HolidayName = h.Name
		return w
	}

	rule, ok := bc.rules[model.DayOfWeekOf(date)]
	if !ok {
		w.ClosedReason = ClosedNoRule
		return w
	}

	w.Open = true
	w.Start = rule.StartTime
	w.End = rule.EndTime
	w.SlotDurationMinutes = rule.SlotDurationMinutes
	w.CapacityPerSlot = rule.MaxCapacityPerSlot
	if w.CapacityPerSlot < 1 {
		w.CapacityPerSlot = 1
	}
	w.TotalSlots = len(w.Slots()) * w.CapacityPerSlot

	if o := bc.overrideOn(date); o != nil {
		w.Overridden = true
		w.TotalSlots = o.TotalSlots
		w.AvailableSlots = o.AvailableSlots
	}
	return w
}
