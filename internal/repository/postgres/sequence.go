package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
)

type sequenceRepository struct {
	BaseRepository
}

func NewSequenceRepository(base BaseRepository) repository.SequenceRepository {
	return &sequenceRepository{base}
}

func (r *sequenceRepository) Next(ctx context.Context, branchID uuid.UUID, branchCode string, year, maxNumber int, onIssued repository.IssuedEvent) (int, error) {
	if onIssued == nil {
		return nextSequence(ctx, r.db, branchID, branchCode, year, maxNumber)
	}

	var issued int
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		n, err := nextSequence(ctx, tx, branchID, branchCode, year, maxNumber)
		if err != nil {
			return err
		}
		event, err := onIssued(n)
		if err != nil {
			return fmt.Errorf("failed to build sequence event: %w", err)
		}
		if err := insertOutboxEvent(ctx, tx, event); err != nil {
			return err
		}
		issued = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return issued, nil
}

func (r *sequenceRepository) Get(ctx context.Context, branchID uuid.UUID, year int) (*model.AppointmentSequence, error) {
	query := `
		SELECT id, branch_id, branch_code, year, current_number, max_number, total_created, version, created_at, updated_at
		FROM appointment_sequences
		WHERE branch_id = $1 AND year = $2
	`
	var seq model.AppointmentSequence
	if err := r.db.GetContext(ctx, &seq, query, branchID, year); err != nil {
		return nil, fmt.Errorf("failed to get sequence: %w", classify(err))
	}
	return &seq, nil
}

// nextSequence issues one number. The counter row is created lazily, then a
// single conditional UPDATE ... RETURNING advances it: the row lock taken by
// the UPDATE serialises concurrent callers, so each sees a distinct value.
func nextSequence(ctx context.Context, db sqlx.ExtContext, branchID uuid.UUID, branchCode string, year, maxNumber int) (int, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO appointment_sequences (
			id, branch_id, branch_code, year, current_number, max_number, total_created, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, 1, $5, 0, 0, NOW(), NOW())
		ON CONFLICT (branch_id, year) DO NOTHING
	`, uuid.New(), branchID, branchCode, year, maxNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to initialise sequence: %w", classify(err))
	}

	var issued int
	err = sqlx.GetContext(ctx, db, &issued, `
		UPDATE appointment_sequences
		SET current_number = current_number + 1,
			total_created = total_created + 1,
			version = version + 1,
			updated_at = NOW()
		WHERE branch_id = $1 AND year = $2 AND current_number <= max_number
		RETURNING current_number - 1
	`, branchID, year)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("branch %s year %d: %w", branchID, year, repository.ErrExhausted)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence: %w", classify(err))
	}
	return issued, nil
}
