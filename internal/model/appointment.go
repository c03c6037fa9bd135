package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusRequested AppointmentStatus = "REQUESTED"
	AppointmentStatusConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

// ActiveStatuses are the non-terminal states; only these hold a slot and
// count toward duplicate checks.
var ActiveStatuses = []AppointmentStatus{AppointmentStatusRequested, AppointmentStatusConfirmed}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusRequested, AppointmentStatusConfirmed, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

// CanTransitionTo encodes REQUESTED → CONFIRMED and
// REQUESTED/CONFIRMED → COMPLETED|CANCELLED.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case AppointmentStatusRequested:
		return next == AppointmentStatusConfirmed || next == AppointmentStatusCompleted || next == AppointmentStatusCancelled
	case AppointmentStatusConfirmed:
		return next == AppointmentStatusCompleted || next == AppointmentStatusCancelled
	}
	return false
}

type AppointmentPriority string

const (
	PriorityNormal AppointmentPriority = "NORMAL"
	PriorityHigh   AppointmentPriority = "HIGH"
	PriorityUrgent AppointmentPriority = "URGENT"
)

type Appointment struct {
	Base
	BeneficiaryID   uuid.UUID           `db:"beneficiary_id" json:"beneficiary_id"`
	BranchID        uuid.UUID           `db:"branch_id" json:"branch_id"`
	ServiceTypeID   uuid.UUID           `db:"service_type_id" json:"service_type_id"`
	AppointmentDate time.Time           `db:"appointment_date" json:"appointment_date"`
	AppointmentTime Clock               `db:"appointment_time" json:"appointment_time"`
	DurationMinutes int                 `db:"duration_minutes" json:"duration_minutes"`
	Status          AppointmentStatus   `db:"status" json:"status"`
	Priority        AppointmentPriority `db:"priority" json:"priority"`
	AppointmentCode string              `db:"appointment_code" json:"appointment_code"`
	IdempotencyKey  *string             `db:"idempotency_key" json:"-"`
	IsDeleted       bool                `db:"is_deleted" json:"-"`
}

// HoldsSlot reports whether the appointment blocks its (branch, date, time).
func (a *Appointment) HoldsSlot() bool {
	return !a.IsDeleted && !a.Status.IsTerminal()
}

// BookingRequest is the input to a booking attempt.
type BookingRequest struct {
	BeneficiaryID   uuid.UUID           `json:"beneficiary_id" validate:"required"`
	BranchID        uuid.UUID           `json:"branch_id" validate:"required"`
	ServiceTypeID   uuid.UUID           `json:"service_type_id" validate:"required"`
	Date            time.Time           `json:"date" validate:"required"`
	Time            Clock               `json:"time"`
	DurationMinutes int                 `json:"duration_minutes" validate:"gte=0,lte=480"`
	Priority        AppointmentPriority `json:"priority" validate:"omitempty,oneof=NORMAL HIGH URGENT"`
	IdempotencyKey  string              `json:"idempotency_key" validate:"max=128"`
}

// CreateAppointmentRequest is the HTTP body for a booking.
type CreateAppointmentRequest struct {
	BeneficiaryID   uuid.UUID `json:"beneficiary_id" binding:"required"`
	BranchID        uuid.UUID `json:"branch_id" binding:"required"`
	ServiceTypeID   uuid.UUID `json:"service_type_id" binding:"required"`
	Date            string    `json:"date" binding:"required,datetime=2006-01-02"`
	Time            string    `json:"time" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"gte=0,lte=480"`
	Priority        string    `json:"priority" binding:"omitempty,oneof=NORMAL HIGH URGENT"`
}

type UpdateStatusRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,oneof=CONFIRMED COMPLETED CANCELLED"`
	Reason string            `json:"reason" binding:"max=500"`
}

// AppointmentStatusHistory records one status change.
type AppointmentStatusHistory struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	AppointmentID uuid.UUID         `db:"appointment_id" json:"appointment_id"`
	FromStatus    AppointmentStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus      AppointmentStatus `db:"to_status" json:"to_status"`
	Reason        string            `db:"reason" json:"reason,omitempty"`
	ChangedAt     time.Time         `db:"changed_at" json:"changed_at"`
}
