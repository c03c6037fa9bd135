package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/validator"
)

// AdminService maintains the calendar data of a branch: weekly rules,
// holidays and daily capacity overrides.
type AdminService struct {
	rules     repository.ScheduleRuleRepository
	holidays  repository.HolidayRepository
	overrides repository.OverrideRepository
	validate  *validator.Validator
	log       *logger.Logger
}

func NewAdminService(
	rules repository.ScheduleRuleRepository,
	holidays repository.HolidayRepository,
	overrides repository.OverrideRepository,
	log *logger.Logger,
) *AdminService {
	return &AdminService{
		rules:     rules,
		holidays:  holidays,
		overrides: overrides,
		validate:  validator.New(),
		log:       log.With("schedule_admin"),
	}
}

func (s *AdminService) ruleFromRequest(branchID uuid.UUID, req *model.CreateScheduleRuleRequest) (*model.WeeklyScheduleRule, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}
	start, err := model.ParseClock(req.StartTime)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid start_time", err)
	}
	end, err := model.ParseClock(req.EndTime)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid end_time", err)
	}
	if start >= end {
		return nil, apperrors.NewBadRequest("start_time must be before end_time", nil)
	}
	if int(end-start) < req.SlotDurationMinutes {
		return nil, apperrors.NewBadRequest("slot_duration_minutes does not fit in the window", nil)
	}
	day, err := ruleDay(req)
	if err != nil {
		return nil, err
	}

	rule := &model.WeeklyScheduleRule{
		BranchID:            branchID,
		DayOfWeek:           day,
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: req.SlotDurationMinutes,
		MaxCapacityPerSlot:  req.MaxCapacityPerSlot,
		IsActive:            true,
	}
	if rule.MaxCapacityPerSlot == 0 {
		rule.MaxCapacityPerSlot = 1
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return rule, nil
}

// ruleDay resolves the weekday of a rule request. An ISO weekday wins over
// the zero day_of_week; a non-zero day_of_week must name the same day.
func ruleDay(req *model.CreateScheduleRuleRequest) (model.DayOfWeek, error) {
	day := model.DayOfWeek(req.DayOfWeek)
	if req.ISODayOfWeek == nil {
		return day, nil
	}
	iso, err := model.DayOfWeekFromISO(*req.ISODayOfWeek)
	if err != nil {
		return 0, apperrors.NewBadRequest("invalid iso_day_of_week", err)
	}
	if req.DayOfWeek != 0 && day.ISO() != *req.ISODayOfWeek {
		return 0, apperrors.NewBadRequest(fmt.Sprintf(
			"day_of_week %d (iso %d) disagrees with iso_day_of_week %d", req.DayOfWeek, day.ISO(), *req.ISODayOfWeek), nil)
	}
	return iso, nil
}

// checkRuleConflicts rejects a rule that would give its day a second active
// rule or an overlapping active window.
func (s *AdminService) checkRuleConflicts(ctx context.Context, rule *model.WeeklyScheduleRule) error {
	if !rule.IsActive {
		return nil
	}
	existing, err := s.rules.ListByBranch(ctx, rule.BranchID)
	if err != nil {
		return repository.ToAppError("schedule rule", err)
	}
	for _, other := range existing {
		if other.ID == rule.ID || !other.Live() || other.DayOfWeek != rule.DayOfWeek {
			continue
		}
		if rule.Overlaps(other) {
			return apperrors.NewConflict(fmt.Sprintf("window overlaps the active %s rule %s-%s",
				other.DayOfWeek, other.StartTime, other.EndTime), nil)
		}
		return apperrors.NewConflict(fmt.Sprintf("%s already has an active rule", other.DayOfWeek), nil)
	}
	return nil
}

func (s *AdminService) CreateRule(ctx context.Context, branchID uuid.UUID, req *model.CreateScheduleRuleRequest) (*model.WeeklyScheduleRule, error) {
	rule, err := s.ruleFromRequest(branchID, req)
	if err != nil {
		return nil, err
	}
	if err := s.checkRuleConflicts(ctx, rule); err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, repository.ToAppError("schedule rule", err)
	}

	s.log.Info("schedule rule created",
		"branch_id", branchID, "rule_id", rule.ID, "day", rule.DayOfWeek.String())
	return rule, nil
}

func (s *AdminService) UpdateRule(ctx context.Context, branchID, ruleID uuid.UUID, req *model.UpdateScheduleRuleRequest) (*model.WeeklyScheduleRule, error) {
	current, err := s.rules.Get(ctx, ruleID)
	if err != nil {
		return nil, repository.ToAppError("schedule rule", err)
	}
	if current.BranchID != branchID {
		return nil, apperrors.NewNotFound("schedule rule", nil)
	}

	rule, err := s.ruleFromRequest(branchID, &req.CreateScheduleRuleRequest)
	if err != nil {
		return nil, err
	}
	rule.ID = current.ID
	rule.CreatedAt = current.CreatedAt
	rule.Version = req.Version

	if err := s.checkRuleConflicts(ctx, rule); err != nil {
		return nil, err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, repository.ToAppError("schedule rule", err)
	}
	return rule, nil
}

func (s *AdminService) DeleteRule(ctx context.Context, branchID, ruleID uuid.UUID) error {
	rule, err := s.rules.Get(ctx, ruleID)
	if err != nil {
		return repository.ToAppError("schedule rule", err)
	}
	if rule.BranchID != branchID {
		return apperrors.NewNotFound("schedule rule", nil)
	}
	if err := s.rules.SoftDelete(ctx, ruleID); err != nil {
		return repository.ToAppError("schedule rule", err)
	}
	return nil
}

func (s *AdminService) ListRules(ctx context.Context, branchID uuid.UUID) ([]*model.WeeklyScheduleRule, error) {
	rules, err := s.rules.ListByBranch(ctx, branchID)
	if err != nil {
		return nil, repository.ToAppError("schedule rule", err)
	}
	return rules, nil
}

func (s *AdminService) CreateHoliday(ctx context.Context, branchID uuid.UUID, req *model.CreateHolidayRequest) (*model.HolidayException, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}
	date, err := model.ParseDate(req.HolidayDate)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid holiday_date", err)
	}

	holiday := &model.HolidayException{
		BranchID:          branchID,
		HolidayDate:       date,
		Name:              req.Name,
		IsRecurringYearly: req.IsRecurringYearly,
		IsActive:          true,
	}
	if err := s.holidays.Create(ctx, holiday); err != nil {
		return nil, repository.ToAppError("holiday", err)
	}

	s.log.Info("holiday created",
		"branch_id", branchID, "date", req.HolidayDate, "recurring", req.IsRecurringYearly)
	return holiday, nil
}

func (s *AdminService) DeleteHoliday(ctx context.Context, id uuid.UUID) error {
	if err := s.holidays.SoftDelete(ctx, id); err != nil {
		return repository.ToAppError("holiday", err)
	}
	return nil
}

func (s *AdminService) ListHolidays(ctx context.Context, branchID uuid.UUID) ([]*model.HolidayException, error) {
	holidays, err := s.holidays.ListByBranch(ctx, branchID)
	if err != nil {
		return nil, repository.ToAppError("holiday", err)
	}
	return holidays, nil
}

func (s *AdminService) UpsertOverride(ctx context.Context, branchID uuid.UUID, req *model.UpsertOverrideRequest) (*model.DailyCapacityOverride, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}
	date, err := model.ParseDate(req.OverrideDate)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid override_date", err)
	}

	override := &model.DailyCapacityOverride{
		BranchID:       branchID,
		OverrideDate:   date,
		ServiceTypeID:  req.ServiceTypeID,
		TotalSlots:     req.TotalSlots,
		AvailableSlots: req.AvailableSlots,
		IsOverride:     true,
	}
	if req.IsOverride != nil {
		override.IsOverride = *req.IsOverride
	}
	if err := s.overrides.Upsert(ctx, override); err != nil {
		return nil, repository.ToAppError("capacity override", err)
	}
	return override, nil
}

func (s *AdminService) DeleteOverride(ctx context.Context, id uuid.UUID) error {
	if err := s.overrides.SoftDelete(ctx, id); err != nil {
		return repository.ToAppError("capacity override", err)
	}
	return nil
}

func (s *AdminService) ListOverrides(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]*model.DailyCapacityOverride, error) {
	if to.Before(from) {
		return nil, apperrors.NewBadRequest("to must not be before from", nil)
	}
	overrides, err := s.overrides.ListRange(ctx, branchID, model.Date(from), model.Date(to))
	if err != nil {
		return nil, repository.ToAppError("capacity override", err)
	}
	return overrides, nil
}
