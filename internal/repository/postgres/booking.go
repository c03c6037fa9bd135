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

type bookingStore struct {
	BaseRepository
}

// NewBookingStore returns a store that serialises bookings with
// transaction-scoped advisory locks.
func NewBookingStore(base BaseRepository) repository.BookingStore {
	return &bookingStore{base}
}

func beneficiaryLockKey(beneficiaryID uuid.UUID) string {
	return "beneficiary|" + beneficiaryID.String()
}

func slotDayLockKey(branchID uuid.UUID, date time.Time) string {
	return branchID.String() + "|" + dateArg(date)
}

func (s *bookingStore) WithBookingLock(ctx context.Context, key repository.BookingKey, fn func(tx repository.BookingTx) error) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, lock := range []string{beneficiaryLockKey(key.BeneficiaryID), slotDayLockKey(key.BranchID, key.Date)} {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lock); err != nil {
				return fmt.Errorf("failed to acquire booking lock: %w", classify(err))
			}
		}
		return fn(&bookingTx{tx: tx})
	})
}

type bookingTx struct {
	tx *sqlx.Tx
}

func (b *bookingTx) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var found bool
	if err := b.tx.GetContext(ctx, &found, query, args...); err != nil {
		return false, classify(err)
	}
	return found, nil
}

func (b *bookingTx) FindByIdempotencyKey(ctx context.Context, beneficiaryID uuid.UUID, key string) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE beneficiary_id = $1 AND idempotency_key = $2`

	var appointment model.Appointment
	if err := b.tx.GetContext(ctx, &appointment, query, beneficiaryID, key); err != nil {
		return nil, fmt.Errorf("failed to find appointment by idempotency key: %w", classify(err))
	}
	return &appointment, nil
}

func (b *bookingTx) SlotTaken(ctx context.Context, branchID uuid.UUID, date time.Time, at model.Clock) (bool, error) {
	found, err := b.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE branch_id = $1 AND appointment_date = $2 AND appointment_time = $3
			AND is_deleted = false AND status IN `+activeStatuses+`
		)`, branchID, dateArg(date), at)
	if err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return found, nil
}

func (b *bookingTx) HasActiveOnDate(ctx context.Context, beneficiaryID, serviceTypeID uuid.UUID, date time.Time) (bool, error) {
	found, err := b.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE beneficiary_id = $1 AND service_type_id = $2 AND appointment_date = $3
			AND is_deleted = false AND status IN `+activeStatuses+`
		)`, beneficiaryID, serviceTypeID, dateArg(date))
	if err != nil {
		return false, fmt.Errorf("failed to check same-day appointments: %w", err)
	}
	return found, nil
}

func (b *bookingTx) HasActiveForService(ctx context.Context, beneficiaryID, serviceTypeID uuid.UUID) (bool, error) {
	found, err := b.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE beneficiary_id = $1 AND service_type_id = $2
			AND is_deleted = false AND status IN `+activeStatuses+`
		)`, beneficiaryID, serviceTypeID)
	if err != nil {
		return false, fmt.Errorf("failed to check active appointments: %w", err)
	}
	return found, nil
}

func (b *bookingTx) NextSequence(ctx context.Context, branchID uuid.UUID, branchCode string, year, maxNumber int) (int, error) {
	return nextSequence(ctx, b.tx, branchID, branchCode, year, maxNumber)
}

func (b *bookingTx) CreateAppointment(ctx context.Context, apt *model.Appointment) error {
	return insertAppointment(ctx, b.tx, apt)
}

func (b *bookingTx) AddStatusHistory(ctx context.Context, entry *model.AppointmentStatusHistory) error {
	return insertStatusHistory(ctx, b.tx, entry)
}

func (b *bookingTx) EnqueueEvent(ctx context.Context, event *model.OutboxEvent) error {
	return insertOutboxEvent(ctx, b.tx, event)
}
