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

const appointmentColumns = `id, beneficiary_id, branch_id, service_type_id, appointment_date, appointment_time,
	duration_minutes, status, priority, appointment_code, idempotency_key, is_deleted, created_at, updated_at`

const idempotencyConstraint = "uq_appointment_idempotency"

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND is_deleted = false`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", classify(err))
	}
	return &appointment, nil
}

type bookedRow struct {
	Date time.Time   `db:"appointment_date"`
	Time model.Clock `db:"appointment_time"`
}

func (r *appointmentRepository) BookedTimes(ctx context.Context, branchID uuid.UUID, from, to time.Time) (map[time.Time]map[model.Clock]struct{}, error) {
	query := `
		SELECT appointment_date, appointment_time
		FROM appointments
		WHERE branch_id = $1
		AND appointment_date BETWEEN $2 AND $3
		AND is_deleted = false
		AND status IN ` + activeStatuses

	var rows []bookedRow
	if err := r.db.SelectContext(ctx, &rows, query, branchID, dateArg(from), dateArg(to)); err != nil {
		return nil, fmt.Errorf("failed to load booked times: %w", classify(err))
	}

	booked := make(map[time.Time]map[model.Clock]struct{})
	for _, row := range rows {
		day := model.Date(row.Date)
		if booked[day] == nil {
			booked[day] = make(map[model.Clock]struct{})
		}
		booked[day][row.Time] = struct{}{}
	}
	return booked, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus, history *model.AppointmentStatusHistory, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE appointments
			SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status = $3 AND is_deleted = false
		`, to, id, from)
		if err != nil {
			return fmt.Errorf("failed to update appointment status: %w", classify(err))
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists,
				`SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1 AND is_deleted = false)`, id); err != nil {
				return fmt.Errorf("failed to check appointment: %w", classify(err))
			}
			if !exists {
				return fmt.Errorf("appointment %s: %w", id, repository.ErrNotFound)
			}
			return fmt.Errorf("appointment %s is no longer %s: %w", id, from, repository.ErrStaleVersion)
		}

		if err := insertStatusHistory(ctx, tx, history); err != nil {
			return err
		}
		if event != nil {
			return insertOutboxEvent(ctx, tx, event)
		}
		return nil
	})
}

func (r *appointmentRepository) ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentStatusHistory, error) {
	query := `
		SELECT id, appointment_id, from_status, to_status, reason, changed_at
		FROM appointment_status_history
		WHERE appointment_id = $1
		ORDER BY changed_at, id
	`
	var history []*model.AppointmentStatusHistory
	if err := r.db.SelectContext(ctx, &history, query, appointmentID); err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", classify(err))
	}
	return history, nil
}

func insertAppointment(ctx context.Context, db sqlx.ExecerContext, apt *model.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, $12, $13)
	`
	apt.Touch(time.Now().UTC())

	_, err := db.ExecContext(ctx, query,
		apt.ID,
		apt.BeneficiaryID,
		apt.BranchID,
		apt.ServiceTypeID,
		dateArg(apt.AppointmentDate),
		apt.AppointmentTime,
		apt.DurationMinutes,
		apt.Status,
		apt.Priority,
		apt.AppointmentCode,
		apt.IdempotencyKey,
		apt.CreatedAt,
		apt.UpdatedAt,
	)
	if err != nil {
		if constraintOf(err) == idempotencyConstraint {
			return fmt.Errorf("failed to create appointment: %w: %w", repository.ErrIdempotencyKeyUsed, classify(err))
		}
		return fmt.Errorf("failed to create appointment: %w", classify(err))
	}
	return nil
}

func insertStatusHistory(ctx context.Context, db sqlx.ExecerContext, entry *model.AppointmentStatusHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO appointment_status_history (id, appointment_id, from_status, to_status, reason, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.AppointmentID, entry.FromStatus, entry.ToStatus, entry.Reason, entry.ChangedAt)
	if err != nil {
		return fmt.Errorf("failed to record status history: %w", classify(err))
	}
	return nil
}
