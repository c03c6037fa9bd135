package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

// IssuedEvent builds the outbox event recorded with an issued sequence
// number.
type IssuedEvent func(number int) (*model.OutboxEvent, error)

// All repository interfaces in one file
type (
	// ScheduleRuleRepository stores weekly schedule templates.
	ScheduleRuleRepository interface {
		Create(ctx context.Context, rule *model.WeeklyScheduleRule) error
		Get(ctx context.Context, id uuid.UUID) (*model.WeeklyScheduleRule, error)
		// Update applies the change only if rule.Version matches the stored
		// version, then bumps it. A mismatch returns ErrStaleVersion.
		Update(ctx context.Context, rule *model.WeeklyScheduleRule) error
		SoftDelete(ctx context.Context, id uuid.UUID) error
		// ListByBranch returns the branch's non-deleted rules, active or not.
		ListByBranch(ctx context.Context, branchID uuid.UUID) ([]*model.WeeklyScheduleRule, error)
	}

	HolidayRepository interface {
		Create(ctx context.Context, holiday *model.HolidayException) error
		SoftDelete(ctx context.Context, id uuid.UUID) error
		ListByBranch(ctx context.Context, branchID uuid.UUID) ([]*model.HolidayException, error)
		// ListCandidates returns the live holidays that may close a date in
		// [from, to]: direct date matches plus every recurring entry.
		ListCandidates(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]*model.HolidayException, error)
	}

	OverrideRepository interface {
		// Upsert inserts or replaces the override for
		// (branch, date, service-or-null).
		Upsert(ctx context.Context, override *model.DailyCapacityOverride) error
		SoftDelete(ctx context.Context, id uuid.UUID) error
		ListRange(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]*model.DailyCapacityOverride, error)
	}

	// AppointmentRepository serves the read side of availability and the
	// status lifecycle. Inserts happen only through BookingStore.
	AppointmentRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// BookedTimes returns, per date in [from, to], the times held by
		// non-terminal, non-deleted appointments of the branch.
		BookedTimes(ctx context.Context, branchID uuid.UUID, from, to time.Time) (map[time.Time]map[model.Clock]struct{}, error)
		// UpdateStatus moves an appointment from one status to another
		// atomically with its history row and outbox event. It returns
		// ErrStaleVersion if the stored status is no longer from.
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus, history *model.AppointmentStatusHistory, event *model.OutboxEvent) error
		ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentStatusHistory, error)
	}

	// SequenceRepository issues appointment sequence numbers.
	SequenceRepository interface {
		// Next atomically returns the current number for (branch, year) and
		// advances the counter, creating it at 1 when absent. It returns
		// ErrExhausted when current exceeds max. When onIssued is set, the
		// event it builds for the issued number is written to the outbox in
		// the same transaction.
		Next(ctx context.Context, branchID uuid.UUID, branchCode string, year, maxNumber int, onIssued IssuedEvent) (int, error)
		Get(ctx context.Context, branchID uuid.UUID, year int) (*model.AppointmentSequence, error)
	}

	// BookingTx is the view of storage inside a booking critical section.
	// Everything done through it commits or rolls back together.
	BookingTx interface {
		// FindByIdempotencyKey returns ErrNotFound when the beneficiary has
		// never used key.
		FindByIdempotencyKey(ctx context.Context, beneficiaryID uuid.UUID, key string) (*model.Appointment, error)
		SlotTaken(ctx context.Context, branchID uuid.UUID, date time.Time, at model.Clock) (bool, error)
		HasActiveOnDate(ctx context.Context, beneficiaryID, serviceTypeID uuid.UUID, date time.Time) (bool, error)
		HasActiveForService(ctx context.Context, beneficiaryID, serviceTypeID uuid.UUID) (bool, error)
		NextSequence(ctx context.Context, branchID uuid.UUID, branchCode string, year, maxNumber int) (int, error)
		CreateAppointment(ctx context.Context, apt *model.Appointment) error
		AddStatusHistory(ctx context.Context, entry *model.AppointmentStatusHistory) error
		EnqueueEvent(ctx context.Context, event *model.OutboxEvent) error
	}

	// BookingStore runs fn in a critical section that excludes every other
	// booking for the same beneficiary and every other booking for the
	// same (branch, date). fn's writes commit only if it returns nil.
	BookingStore interface {
		WithBookingLock(ctx context.Context, key BookingKey, fn func(tx BookingTx) error) error
	}

	// BranchDirectory is the branch/location collaborator.
	BranchDirectory interface {
		ListBranchesOfferingService(ctx context.Context, serviceTypeID uuid.UUID) ([]uuid.UUID, error)
		FindNearbyActiveBranches(ctx context.Context, lat, lon, radiusKm float64) ([]*model.Branch, error)
		GetBranch(ctx context.Context, id uuid.UUID) (*model.Branch, error)
		GetServiceType(ctx context.Context, id uuid.UUID) (*model.ServiceType, error)
	}

	OutboxRepository interface {
		// ClaimPending locks up to limit pending events for fn, skipping
		// rows held by other relays, and records fn's outcome in the same
		// transaction. An event failing for the maxRetries-th time is
		// marked FAILED.
		ClaimPending(ctx context.Context, limit, maxRetries int, fn func(events []*model.OutboxEvent) OutboxOutcome) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// BookingKey names the resources a booking attempt locks. The beneficiary
// is always locked before the slot day.
type BookingKey struct {
	BranchID      uuid.UUID
	Date          time.Time
	BeneficiaryID uuid.UUID
}

// OutboxOutcome is what a relay did with a claimed batch. Events in neither
// set stay pending untouched.
type OutboxOutcome struct {
	Processed []uuid.UUID
	Failed    map[uuid.UUID]string
}
