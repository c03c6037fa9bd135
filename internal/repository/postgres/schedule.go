package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
)

const ruleColumns = `id, branch_id, day_of_week, start_time, end_time, slot_duration_minutes,
	max_capacity_per_slot, is_active, is_deleted, version, created_at, updated_at`

type scheduleRuleRepository struct {
	BaseRepository
}

func NewScheduleRuleRepository(base BaseRepository) repository.ScheduleRuleRepository {
	return &scheduleRuleRepository{base}
}

func (r *scheduleRuleRepository) Create(ctx context.Context, rule *model.WeeklyScheduleRule) error {
	query := `
		INSERT INTO weekly_schedule_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, 0, $9, $10)
	`
	rule.Touch(time.Now().UTC())
	rule.Version = 0

	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.BranchID,
		rule.DayOfWeek,
		rule.StartTime,
		rule.EndTime,
		rule.SlotDurationMinutes,
		rule.MaxCapacityPerSlot,
		rule.IsActive,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule rule: %w", classify(err))
	}
	return nil
}

func (r *scheduleRuleRepository) Get(ctx context.Context, id uuid.UUID) (*model.WeeklyScheduleRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM weekly_schedule_rules WHERE id = $1 AND is_deleted = false`

	var rule model.WeeklyScheduleRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		return nil, fmt.Errorf("failed to get schedule rule: %w", classify(err))
	}
	return &rule, nil
}

func (r *scheduleRuleRepository) Update(ctx context.Context, rule *model.WeeklyScheduleRule) error {
	query := `
		UPDATE weekly_schedule_rules
		SET day_of_week = $1, start_time = $2, end_time = $3, slot_duration_minutes = $4,
			max_capacity_per_slot = $5, is_active = $6, version = version + 1, updated_at = $7
		WHERE id = $8 AND version = $9 AND is_deleted = false
	`
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		rule.DayOfWeek,
		rule.StartTime,
		rule.EndTime,
		rule.SlotDurationMinutes,
		rule.MaxCapacityPerSlot,
		rule.IsActive,
		now,
		rule.ID,
		rule.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule rule: %w", classify(err))
	}
	if err := r.expectOne(ctx, result.RowsAffected, rule.ID); err != nil {
		return err
	}
	rule.Version++
	rule.UpdatedAt = now
	return nil
}

// expectOne turns a zero-row versioned write into ErrNotFound or
// ErrStaleVersion.
func (r *scheduleRuleRepository) expectOne(ctx context.Context, affected func() (int64, error), id uuid.UUID) error {
	rows, err := affected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM weekly_schedule_rules WHERE id = $1 AND is_deleted = false)`, id); err != nil {
		return fmt.Errorf("failed to check schedule rule: %w", classify(err))
	}
	if !exists {
		return fmt.Errorf("schedule rule %s: %w", id, repository.ErrNotFound)
	}
	return fmt.Errorf("schedule rule %s: %w", id, repository.ErrStaleVersion)
}

func (r *scheduleRuleRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return softDelete(ctx, r.db, "weekly_schedule_rules", id)
}

func (r *scheduleRuleRepository) ListByBranch(ctx context.Context, branchID uuid.UUID) ([]*model.WeeklyScheduleRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM weekly_schedule_rules
		WHERE branch_id = $1 AND is_deleted = false
		ORDER BY day_of_week, start_time
	`
	var rules []*model.WeeklyScheduleRule
	if err := r.db.SelectContext(ctx, &rules, query, branchID); err != nil {
		return nil, fmt.Errorf("failed to list schedule rules: %w", classify(err))
	}
	return rules, nil
}

const holidayColumns = `id, branch_id, holiday_date, name, is_recurring_yearly, is_active, is_deleted, created_at, updated_at`

type holidayRepository struct {
	BaseRepository
}

func NewHolidayRepository(base BaseRepository) repository.HolidayRepository {
	return &holidayRepository{base}
}

func (r *holidayRepository) Create(ctx context.Context, holiday *model.HolidayException) error {
	query := `
		INSERT INTO holiday_exceptions (` + holidayColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)
	`
	holiday.Touch(time.Now().UTC())

	_, err := r.db.ExecContext(ctx, query,
		holiday.ID,
		holiday.BranchID,
		dateArg(holiday.HolidayDate),
		holiday.Name,
		holiday.IsRecurringYearly,
		holiday.IsActive,
		holiday.CreatedAt,
		holiday.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create holiday: %w", classify(err))
	}
	return nil
}

func (r *holidayRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return softDelete(ctx, r.db, "holiday_exceptions", id)
}

func (r *holidayRepository) ListByBranch(ctx context.Context, branchID uuid.UUID) ([]*model.HolidayException, error) {
	query := `
		SELECT ` + holidayColumns + `
		FROM holiday_exceptions
		WHERE branch_id = $1 AND is_deleted = false
		ORDER BY holiday_date
	`
	var holidays []*model.HolidayException
	if err := r.db.SelectContext(ctx, &holidays, query, branchID); err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", classify(err))
	}
	return holidays, nil
}

func (r *holidayRepository) ListCandidates(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]*model.HolidayException, error) {
	query := `
		SELECT ` + holidayColumns + `
		FROM holiday_exceptions
		WHERE branch_id = $1 AND is_active = true AND is_deleted = false
		AND (holiday_date BETWEEN $2 AND $3 OR is_recurring_yearly = true)
	`
	var holidays []*model.HolidayException
	if err := r.db.SelectContext(ctx, &holidays, query, branchID, dateArg(from), dateArg(to)); err != nil {
		return nil, fmt.Errorf("failed to list holiday candidates: %w", classify(err))
	}
	return holidays, nil
}

const overrideColumns = `id, branch_id, override_date, service_type_id, total_slots, available_slots,
	is_override, is_deleted, created_at, updated_at`

type overrideRepository struct {
	BaseRepository
}

func NewOverrideRepository(base BaseRepository) repository.OverrideRepository {
	return &overrideRepository{base}
}

func (r *overrideRepository) Upsert(ctx context.Context, override *model.DailyCapacityOverride) error {
	query := `
		INSERT INTO daily_capacity_overrides (` + overrideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9)
		ON CONFLICT (branch_id, override_date, COALESCE(service_type_id, '00000000-0000-0000-0000-000000000000'::uuid))
			WHERE is_deleted = false
		DO UPDATE SET total_slots = EXCLUDED.total_slots,
			available_slots = EXCLUDED.available_slots,
			is_override = EXCLUDED.is_override,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	override.Touch(time.Now().UTC())

	err := r.db.QueryRowxContext(ctx, query,
		override.ID,
		override.BranchID,
		dateArg(override.OverrideDate),
		override.ServiceTypeID,
		override.TotalSlots,
		override.AvailableSlots,
		override.IsOverride,
		override.CreatedAt,
		override.UpdatedAt,
	).Scan(&override.ID, &override.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert capacity override: %w", classify(err))
	}
	return nil
}

func (r *overrideRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return softDelete(ctx, r.db, "daily_capacity_overrides", id)
}

func (r *overrideRepository) ListRange(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]*model.DailyCapacityOverride, error) {
	query := `
		SELECT ` + overrideColumns + `
		FROM daily_capacity_overrides
		WHERE branch_id = $1 AND is_deleted = false
		AND override_date BETWEEN $2 AND $3
		ORDER BY override_date
	`
	var overrides []*model.DailyCapacityOverride
	if err := r.db.SelectContext(ctx, &overrides, query, branchID, dateArg(from), dateArg(to)); err != nil {
		return nil, fmt.Errorf("failed to list capacity overrides: %w", classify(err))
	}
	return overrides, nil
}

// softDelete flags a configuration row as deleted. table is always a
// package constant.
func softDelete(ctx context.Context, db sqlx.ExecerContext, table string, id uuid.UUID) error {
	query := fmt.Sprintf(`UPDATE %s SET is_deleted = true, updated_at = NOW() WHERE id = $1 AND is_deleted = false`, table)
	result, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", table, id, repository.ErrNotFound)
	}
	return nil
}
