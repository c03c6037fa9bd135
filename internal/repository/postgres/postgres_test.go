package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
)

func setupMockDB(t *testing.T) (BaseRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewBaseRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestSequenceRepository_NextIssuesCurrentNumber(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewSequenceRepository(base)
	branchID := uuid.New()

	mock.ExpectExec(`INSERT INTO appointment_sequences`).
		WithArgs(sqlmock.AnyArg(), branchID, "HQ", 2025, 9999).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE appointment_sequences`).
		WithArgs(branchID, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	n, err := repo.Next(context.Background(), branchID, "HQ", 2025, 9999, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceRepository_NextExhausted(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewSequenceRepository(base)
	branchID := uuid.New()

	mock.ExpectExec(`INSERT INTO appointment_sequences`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`UPDATE appointment_sequences`).
		WithArgs(branchID, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	_, err := repo.Next(context.Background(), branchID, "HQ", 2025, 9999, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrExhausted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceRepository_NextRecordsEventInSameTransaction(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewSequenceRepository(base)
	branchID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO appointment_sequences`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE appointment_sequences`).
		WithArgs(branchID, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(4))
	mock.ExpectExec(`INSERT INTO outbox_events`).
		WithArgs(sqlmock.AnyArg(), branchID, model.EventSequenceIssued, sqlmock.AnyArg(), model.OutboxStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var built int
	n, err := repo.Next(context.Background(), branchID, "HQ", 2025, 9999, func(number int) (*model.OutboxEvent, error) {
		built = number
		return model.NewOutboxEvent(model.EventSequenceIssued, branchID, map[string]int{"number": number}, time.Now())
	})

	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, built)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceRepository_NextRollsBackWhenEventFails(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewSequenceRepository(base)
	branchID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO appointment_sequences`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE appointment_sequences`).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO outbox_events`).
		WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()

	_, err := repo.Next(context.Background(), branchID, "HQ", 2025, 9999, func(number int) (*model.OutboxEvent, error) {
		return model.NewOutboxEvent(model.EventSequenceIssued, branchID, map[string]int{"number": number}, time.Now())
	})

	assert.ErrorIs(t, err, repository.ErrTransient)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, repository.ErrNotFound},
		{"unique violation", &pq.Error{Code: "23505", Constraint: "uq_appointment_slot"}, repository.ErrDuplicate},
		{"serialization failure", &pq.Error{Code: "40001"}, repository.ErrTransient},
		{"deadlock", &pq.Error{Code: "40P01"}, repository.ErrTransient},
		{"lock not available", &pq.Error{Code: "55P03"}, repository.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}

	other := errors.New("boom")
	assert.Equal(t, other, classify(other))
	assert.Nil(t, classify(nil))
	assert.Equal(t, "uq_appointment_slot", constraintOf(classify(&pq.Error{Code: "23505", Constraint: "uq_appointment_slot"})))
}

func TestBookingStore_LocksInsideTransaction(t *testing.T) {
	base, mock := setupMockDB(t)
	store := NewBookingStore(base)
	branchID := uuid.New()
	date := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

	beneficiaryID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("beneficiary|" + beneficiaryID.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(branchID.String() + "|2025-01-05").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(branchID, "2025-01-05", "08:00:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	var taken bool
	key := repository.BookingKey{BranchID: branchID, Date: date, BeneficiaryID: beneficiaryID}
	err := store.WithBookingLock(context.Background(), key, func(tx repository.BookingTx) error {
		var err error
		taken, err = tx.SlotTaken(context.Background(), branchID, date, model.MustParseClock("08:00"))
		return err
	})

	require.NoError(t, err)
	assert.True(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingStore_RollsBackOnRejection(t *testing.T) {
	base, mock := setupMockDB(t)
	store := NewBookingStore(base)
	rejected := errors.New("rejected")

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	key := repository.BookingKey{BranchID: uuid.New(), Date: time.Now(), BeneficiaryID: uuid.New()}
	err := store.WithBookingLock(context.Background(), key, func(tx repository.BookingTx) error {
		return rejected
	})

	assert.ErrorIs(t, err, rejected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingStore_CreateAppointmentMapsUniqueViolation(t *testing.T) {
	base, mock := setupMockDB(t)
	store := NewBookingStore(base)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO appointments`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_appointment_slot"})
	mock.ExpectRollback()

	apt := &model.Appointment{
		BeneficiaryID:   uuid.New(),
		BranchID:        uuid.New(),
		ServiceTypeID:   uuid.New(),
		AppointmentDate: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		AppointmentTime: model.MustParseClock("08:00"),
		Status:          model.AppointmentStatusRequested,
		Priority:        model.PriorityNormal,
		AppointmentCode: "HQ-2025-0001",
	}
	key := repository.BookingKey{BranchID: apt.BranchID, Date: apt.AppointmentDate, BeneficiaryID: apt.BeneficiaryID}
	err := store.WithBookingLock(context.Background(), key, func(tx repository.BookingTx) error {
		return tx.CreateAppointment(context.Background(), apt)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Equal(t, "uq_appointment_slot", constraintOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBranchDirectory_FindNearbyClampsHaversineTerm(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewBranchDirectory(base)
	branchID := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "code", "name", "address", "latitude", "longitude", "is_active"}).
		AddRow(branchID.String(), "AKL", "Auckland", "1 Queen St", -36.85, 174.76, true)
	mock.ExpectQuery(`asin\(sqrt\(LEAST\(1\.0,`).
		WithArgs(36.85, -5.24, 20100.0).
		WillReturnRows(rows)

	branches, err := repo.FindNearbyActiveBranches(context.Background(), 36.85, -5.24, 20100)

	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "AKL", branches[0].Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_BookedTimes(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAppointmentRepository(base)
	branchID := uuid.New()
	from := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	rows := sqlmock.NewRows([]string{"appointment_date", "appointment_time"}).
		AddRow(from, "08:00:00").
		AddRow(from, "08:30:00").
		AddRow(to, "09:00:00")
	mock.ExpectQuery(`SELECT appointment_date, appointment_time`).
		WithArgs(branchID, "2025-01-05", "2025-01-06").
		WillReturnRows(rows)

	booked, err := repo.BookedTimes(context.Background(), branchID, from, to)

	require.NoError(t, err)
	assert.Len(t, booked[from], 2)
	assert.Contains(t, booked[from], model.MustParseClock("08:30"))
	assert.Contains(t, booked[to], model.MustParseClock("09:00"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_UpdateStatusStale(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAppointmentRepository(base)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE appointments`).
		WithArgs("CANCELLED", id, "REQUESTED").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), id, model.AppointmentStatusRequested, model.AppointmentStatusCancelled,
		&model.AppointmentStatusHistory{AppointmentID: id}, nil)

	assert.ErrorIs(t, err, repository.ErrStaleVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_UpdateStatusWritesHistoryAndEvent(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAppointmentRepository(base)
	id := uuid.New()

	event, err := model.NewOutboxEvent(model.EventAppointmentStatusChanged, id,
		model.AppointmentStatusChangedPayload{AppointmentID: id}, time.Now())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE appointments`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO appointment_status_history`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO outbox_events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = repo.UpdateStatus(context.Background(), id, model.AppointmentStatusRequested, model.AppointmentStatusConfirmed,
		&model.AppointmentStatusHistory{AppointmentID: id, FromStatus: model.AppointmentStatusRequested, ToStatus: model.AppointmentStatusConfirmed}, event)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRuleRepository_UpdateStaleVersion(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewScheduleRuleRepository(base)
	rule := &model.WeeklyScheduleRule{
		Base:                model.Base{ID: uuid.New()},
		DayOfWeek:           model.Sunday,
		StartTime:           model.MustParseClock("08:00"),
		EndTime:             model.MustParseClock("12:00"),
		SlotDurationMinutes: 30,
		MaxCapacityPerSlot:  1,
		IsActive:            true,
		Version:             2,
	}

	mock.ExpectExec(`UPDATE weekly_schedule_rules`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(rule.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Update(context.Background(), rule)

	assert.ErrorIs(t, err, repository.ErrStaleVersion)
	assert.Equal(t, 2, rule.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRuleRepository_SoftDeleteMissing(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewScheduleRuleRepository(base)

	mock.ExpectExec(`UPDATE weekly_schedule_rules SET is_deleted = true`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), uuid.New())

	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_ClaimPendingRecordsOutcome(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewOutboxRepository(base)
	ok, bad := uuid.New(), uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "aggregate_id", "event_type", "payload", "status", "error_message", "retry_count",
		"created_at", "updated_at", "processed_at",
	}).
		AddRow(ok.String(), uuid.New().String(), model.EventAppointmentBooked, []byte(`{}`), "PENDING", nil, 0, now, now, nil).
		AddRow(bad.String(), uuid.New().String(), model.EventAppointmentBooked, []byte(`{}`), "PENDING", nil, 2, now, now, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, aggregate_id`).
		WithArgs("PENDING", 10).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE outbox_events`).
		WithArgs("PROCESSED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE outbox_events`).
		WithArgs(sqlmock.AnyArg(), 3, "FAILED", bad).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var claimed int
	err := repo.ClaimPending(context.Background(), 10, 3, func(events []*model.OutboxEvent) repository.OutboxOutcome {
		claimed = len(events)
		return repository.OutboxOutcome{
			Processed: []uuid.UUID{ok},
			Failed:    map[uuid.UUID]string{bad: "broker down"},
		}
	})

	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}
