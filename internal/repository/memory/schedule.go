package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
)

type scheduleRules struct{ s *Store }

func (s *Store) ScheduleRules() repository.ScheduleRuleRepository { return scheduleRules{s} }

// activeDayTaken mirrors the partial unique index on active
// (branch, day_of_week) rules.
func (s *Store) activeDayTaken(rule *model.WeeklyScheduleRule) bool {
	if !rule.IsActive {
		return false
	}
	for id, other := range s.rules {
		if id != rule.ID && other.Live() && other.BranchID == rule.BranchID && other.DayOfWeek == rule.DayOfWeek {
			return true
		}
	}
	return false
}

func (r scheduleRules) Create(_ context.Context, rule *model.WeeklyScheduleRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rule.Touch(r.s.now())
	rule.Version = 0
	rule.IsDeleted = false
	if r.s.activeDayTaken(rule) {
		return fmt.Errorf("active rule for %s: %w", rule.DayOfWeek, repository.ErrDuplicate)
	}
	r.s.rules[rule.ID] = *rule
	return nil
}

func (r scheduleRules) Get(_ context.Context, id uuid.UUID) (*model.WeeklyScheduleRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rule, ok := r.s.rules[id]
	if !ok || rule.IsDeleted {
		return nil, fmt.Errorf("schedule rule %s: %w", id, repository.ErrNotFound)
	}
	return &rule, nil
}

func (r scheduleRules) Update(_ context.Context, rule *model.WeeklyScheduleRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.rules[rule.ID]
	if !ok || stored.IsDeleted {
		return fmt.Errorf("schedule rule %s: %w", rule.ID, repository.ErrNotFound)
	}
	if stored.Version != rule.Version {
		return fmt.Errorf("schedule rule %s: %w", rule.ID, repository.ErrStaleVersion)
	}
	rule.BranchID = stored.BranchID
	if r.s.activeDayTaken(rule) {
		return fmt.Errorf("active rule for %s: %w", rule.DayOfWeek, repository.ErrDuplicate)
	}

	rule.CreatedAt = stored.CreatedAt
	rule.UpdatedAt = r.s.now()
	rule.Version++
	r.s.rules[rule.ID] = *rule
	return nil
}

func (r scheduleRules) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rule, ok := r.s.rules[id]
	if !ok || rule.IsDeleted {
		return fmt.Errorf("schedule rule %s: %w", id, repository.ErrNotFound)
	}
	rule.IsDeleted = true
	rule.UpdatedAt = r.s.now()
	r.s.rules[id] = rule
	return nil
}

func (r scheduleRules) ListByBranch(_ context.Context, branchID uuid.UUID) ([]*model.WeeklyScheduleRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.WeeklyScheduleRule
	for _, rule := range r.s.rules {
		if rule.BranchID == branchID && !rule.IsDeleted {
			rule := rule
			out = append(out, &rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

type holidays struct{ s *Store }

func (s *Store) Holidays() repository.HolidayRepository { return holidays{s} }

func (r holidays) Create(_ context.Context, holiday *model.HolidayException) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	holiday.HolidayDate = model.Date(holiday.HolidayDate)
	for _, other := range r.s.holidays {
		if !other.IsDeleted && other.BranchID == holiday.BranchID && other.HolidayDate.Equal(holiday.HolidayDate) {
			return fmt.Errorf("holiday on %s: %w", holiday.HolidayDate.Format(model.DateLayout), repository.ErrDuplicate)
		}
	}
	holiday.Touch(r.s.now())
	holiday.IsDeleted = false
	r.s.holidays[holiday.ID] = *holiday
	return nil
}

func (r holidays) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	h, ok := r.s.holidays[id]
	if !ok || h.IsDeleted {
		return fmt.Errorf("holiday %s: %w", id, repository.ErrNotFound)
	}
	h.IsDeleted = true
	h.UpdatedAt = r.s.now()
	r.s.holidays[id] = h
	return nil
}

func (r holidays) ListByBranch(_ context.Context, branchID uuid.UUID) ([]*model.HolidayException, error) {
	return r.list(branchID, func(h *model.HolidayException) bool { return !h.IsDeleted }), nil
}

func (r holidays) ListCandidates(_ context.Context, branchID uuid.UUID, from, to time.Time) ([]*model.HolidayException, error) {
	from, to = model.Date(from), model.Date(to)
	return r.list(branchID, func(h *model.HolidayException) bool {
		if !h.Live() {
			return false
		}
		return h.IsRecurringYearly || (!h.HolidayDate.Before(from) && !h.HolidayDate.After(to))
	}), nil
}

func (r holidays) list(branchID uuid.UUID, keep func(*model.HolidayException) bool) []*model.HolidayException {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.HolidayException
	for _, h := range r.s.holidays {
		h := h
		if h.BranchID == branchID && keep(&h) {
			out = append(out, &h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HolidayDate.Before(out[j].HolidayDate) })
	return out
}

type overrides struct{ s *Store }

func (s *Store) Overrides() repository.OverrideRepository { return overrides{s} }

func sameService(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r overrides) Upsert(_ context.Context, override *model.DailyCapacityOverride) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	override.OverrideDate = model.Date(override.OverrideDate)
	now := r.s.now()
	for id, existing := range r.s.overrides {
		if existing.IsDeleted || existing.BranchID != override.BranchID ||
			!existing.OverrideDate.Equal(override.OverrideDate) || !sameService(existing.ServiceTypeID, override.ServiceTypeID) {
			continue
		}
		existing.TotalSlots = override.TotalSlots
		existing.AvailableSlots = override.AvailableSlots
		existing.IsOverride = override.IsOverride
		existing.UpdatedAt = now
		r.s.overrides[id] = existing
		*override = existing
		return nil
	}

	override.Touch(now)
	override.IsDeleted = false
	r.s.overrides[override.ID] = *override
	return nil
}

func (r overrides) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.overrides[id]
	if !ok || o.IsDeleted {
		return fmt.Errorf("capacity override %s: %w", id, repository.ErrNotFound)
	}
	o.IsDeleted = true
	o.UpdatedAt = r.s.now()
	r.s.overrides[id] = o
	return nil
}

func (r overrides) ListRange(_ context.Context, branchID uuid.UUID, from, to time.Time) ([]*model.DailyCapacityOverride, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	from, to = model.Date(from), model.Date(to)
	var out []*model.DailyCapacityOverride
	for _, o := range r.s.overrides {
		if o.IsDeleted || o.BranchID != branchID || o.OverrideDate.Before(from) || o.OverrideDate.After(to) {
			continue
		}
		o := o
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OverrideDate.Before(out[j].OverrideDate) })
	return out, nil
}
