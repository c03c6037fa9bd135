package booking

import (
	"context"
	"fmt"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
)

// Guard runs the booking rules against the state visible inside a booking
// critical section. Checks run in a fixed order and the first failure
// wins.
type Guard struct{}

// Check returns nil when the request may be booked, or one of
// ErrSlotConflict, ErrSameDayDuplicate, ErrActiveServiceDuplicate.
func (Guard) Check(ctx context.Context, tx repository.BookingTx, req *model.BookingRequest) error {
	date := model.Date(req.Date)

	taken, err := tx.SlotTaken(ctx, req.BranchID, date, req.Time)
	if err != nil {
		return fmt.Errorf("failed to check slot: %w", err)
	}
	if taken {
		return apperrors.ErrSlotConflict
	}

	sameDay, err := tx.HasActiveOnDate(ctx, req.BeneficiaryID, req.ServiceTypeID, date)
	if err != nil {
		return fmt.Errorf("failed to check same-day bookings: %w", err)
	}
	if sameDay {
		return apperrors.ErrSameDayDuplicate
	}

	active, err := tx.HasActiveForService(ctx, req.BeneficiaryID, req.ServiceTypeID)
	if err != nil {
		return fmt.Errorf("failed to check active bookings: %w", err)
	}
	if active {
		return apperrors.ErrActiveServiceDuplicate
	}
	return nil
}
