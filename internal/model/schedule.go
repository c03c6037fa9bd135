package model

import (
	"time"

	"github.com/google/uuid"
)

// WeeklyScheduleRule is the recurring working window of one branch on one
// weekday.
type WeeklyScheduleRule struct {
	Base
	BranchID            uuid.UUID `db:"branch_id" json:"branch_id"`
	DayOfWeek           DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartTime           Clock     `db:"start_time" json:"start_time"`
	EndTime             Clock     `db:"end_time" json:"end_time"`
	SlotDurationMinutes int       `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	MaxCapacityPerSlot  int       `db:"max_capacity_per_slot" json:"max_capacity_per_slot"`
	IsActive            bool      `db:"is_active" json:"is_active"`
	IsDeleted           bool      `db:"is_deleted" json:"-"`
	Version             int       `db:"version" json:"version"`
}

// Live reports whether the rule takes part in calendar resolution.
func (r *WeeklyScheduleRule) Live() bool {
	return r.IsActive && !r.IsDeleted
}

// Overlaps reports whether the two [start,end) windows intersect.
func (r *WeeklyScheduleRule) Overlaps(other *WeeklyScheduleRule) bool {
	return r.StartTime < other.EndTime && other.StartTime < r.EndTime
}

// HolidayException closes a branch on a date, or on a recurrence of it.
type HolidayException struct {
	Base
	BranchID          uuid.UUID `db:"branch_id" json:"branch_id"`
	HolidayDate       time.Time `db:"holiday_date" json:"holiday_date"`
	Name              string    `db:"name" json:"name"`
	IsRecurringYearly bool      `db:"is_recurring_yearly" json:"is_recurring_yearly"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	IsDeleted         bool      `db:"is_deleted" json:"-"`
}

func (h *HolidayException) Live() bool {
	return h.IsActive && !h.IsDeleted
}

// DailyCapacityOverride adjusts the slot counts reported for a date. A nil
// ServiceTypeID applies to every service of the branch.
type DailyCapacityOverride struct {
	Base
	BranchID       uuid.UUID  `db:"branch_id" json:"branch_id"`
	OverrideDate   time.Time  `db:"override_date" json:"override_date"`
	ServiceTypeID  *uuid.UUID `db:"service_type_id" json:"service_type_id,omitempty"`
	TotalSlots     int        `db:"total_slots" json:"total_slots"`
	AvailableSlots int        `db:"available_slots" json:"available_slots"`
	IsOverride     bool       `db:"is_override" json:"is_override"`
	IsDeleted      bool       `db:"is_deleted" json:"-"`
}

// AppliesTo reports whether the override covers serviceTypeID. A nil
// argument means "any service" and only matches all-services overrides.
func (o *DailyCapacityOverride) AppliesTo(serviceTypeID *uuid.UUID) bool {
	if o.ServiceTypeID == nil {
		return true
	}
	return serviceTypeID != nil && *o.ServiceTypeID == *serviceTypeID
}

// CreateScheduleRuleRequest is the admin input for a weekly rule. The day may
// be given as day_of_week (0=Sunday) or as iso_day_of_week (1=Monday …
// 7=Sunday).
type CreateScheduleRuleRequest struct {
	DayOfWeek           int    `json:"day_of_week" validate:"min=0,max=6"`
	ISODayOfWeek        *int   `json:"iso_day_of_week,omitempty" validate:"omitempty,min=1,max=7"`
	StartTime           string `json:"start_time" validate:"required"`
	EndTime             string `json:"end_time" validate:"required"`
	SlotDurationMinutes int    `json:"slot_duration_minutes" validate:"required,gt=0,lte=480"`
	MaxCapacityPerSlot  int    `json:"max_capacity_per_slot" validate:"omitempty,gt=0"`
	IsActive            *bool  `json:"is_active"`
}

type UpdateScheduleRuleRequest struct {
	CreateScheduleRuleRequest
	Version int `json:"version" validate:"gte=0"`
}

type CreateHolidayRequest struct {
	HolidayDate       string `json:"holiday_date" validate:"required,datetime=2006-01-02"`
	Name              string `json:"name" validate:"required,max=200"`
	IsRecurringYearly bool   `json:"is_recurring_yearly"`
}

type UpsertOverrideRequest struct {
	OverrideDate   string     `json:"override_date" validate:"required,datetime=2006-01-02"`
	ServiceTypeID  *uuid.UUID `json:"service_type_id"`
	TotalSlots     int        `json:"total_slots" validate:"gte=0"`
	AvailableSlots int        `json:"available_slots" validate:"gte=0,ltefield=TotalSlots"`
	IsOverride     *bool      `json:"is_override"`
}
