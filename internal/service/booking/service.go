// Package booking commits appointments and drives their status lifecycle.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/internal/service/event"
	"github.com/jwalitptl/appointment-engine/internal/service/schedule"
	"github.com/jwalitptl/appointment-engine/internal/service/sequence"
	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
	"github.com/jwalitptl/appointment-engine/pkg/retry"
	"github.com/jwalitptl/appointment-engine/pkg/validator"
)

type Options struct {
	// EnforceScheduleGrid rejects times that are not a slot of an open day.
	EnforceScheduleGrid bool
	Retry               retry.Config
}

type Service struct {
	store        repository.BookingStore
	appointments repository.AppointmentRepository
	directory    repository.BranchDirectory
	calendar     *schedule.Calendar
	allocator    *sequence.Allocator
	guard        Guard
	validate     *validator.Validator
	opts         Options
	metrics      *metrics.Metrics
	log          *logger.Logger
	now          func() time.Time
}

func NewService(
	store repository.BookingStore,
	appointments repository.AppointmentRepository,
	directory repository.BranchDirectory,
	calendar *schedule.Calendar,
	allocator *sequence.Allocator,
	opts Options,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	return &Service{
		store:        store,
		appointments: appointments,
		directory:    directory,
		calendar:     calendar,
		allocator:    allocator,
		validate:     validator.New(),
		opts:         opts,
		metrics:      m,
		log:          log.With("booking"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// BookAppointment validates req, then checks the booking rules, mints the
// appointment code and stores the appointment with its history row and
// booked event, all in one critical section. A request repeating an
// idempotency key the beneficiary already used returns the original
// appointment.
func (s *Service) BookAppointment(ctx context.Context, req model.BookingRequest) (*model.Appointment, error) {
	apt, replayed, err := s.bookAppointment(ctx, &req)
	result := "approved"
	switch {
	case err != nil:
		result = apperrors.CodeOf(err).String()
	case replayed:
		result = "replayed"
	}
	s.metrics.BookingsTotal.WithLabelValues(result).Inc()
	return apt, err
}

func (s *Service) bookAppointment(ctx context.Context, req *model.BookingRequest) (*model.Appointment, bool, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, false, err
	}
	if !req.Time.Valid() || req.Time >= model.MinutesPerDay {
		return nil, false, apperrors.NewBadRequest("time out of range", nil)
	}
	req.Date = model.Date(req.Date)
	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}

	branch, err := s.directory.GetBranch(ctx, req.BranchID)
	if err != nil {
		return nil, false, repository.ToAppError("branch", err)
	}
	if !branch.IsActive {
		return nil, false, apperrors.NewBadRequest("branch is not active", nil)
	}
	serviceType, err := s.directory.GetServiceType(ctx, req.ServiceTypeID)
	if err != nil {
		return nil, false, repository.ToAppError("service type", err)
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = serviceType.DurationMinutes
	}

	if s.opts.EnforceScheduleGrid {
		if err := s.checkGrid(ctx, req); err != nil {
			return nil, false, err
		}
	}

	var (
		apt      *model.Appointment
		replayed bool
	)
	err = retry.Do(ctx, s.opts.Retry, repository.IsTransient, func(err error) {
		s.metrics.StorageRetries.WithLabelValues("book").Inc()
		s.log.Warn("retrying booking after transient storage error",
			"branch_id", req.BranchID, "error", err.Error())
	}, func() error {
		var err error
		apt, replayed, err = s.book(ctx, req, branch)
		return err
	})
	if err != nil {
		return nil, false, s.bookingError(err)
	}

	if replayed {
		s.log.Info("booking replayed by idempotency key",
			"appointment_id", apt.ID, "beneficiary_id", req.BeneficiaryID)
	} else {
		s.log.Info("appointment booked",
			"appointment_id", apt.ID,
			"code", apt.AppointmentCode,
			"branch_id", apt.BranchID,
			"date", apt.AppointmentDate.Format(model.DateLayout),
			"time", apt.AppointmentTime.String())
	}
	return apt, replayed, nil
}

func (s *Service) checkGrid(ctx context.Context, req *model.BookingRequest) error {
	w, err := s.calendar.Resolve(ctx, req.BranchID, req.Date, &req.ServiceTypeID)
	if err != nil {
		return repository.ToAppError("schedule", err)
	}
	if !w.Open {
		return apperrors.Wrap(apperrors.ErrOutsideSchedule,
			fmt.Errorf("branch closed on %s: %s", req.Date.Format(model.DateLayout), w.ClosedReason))
	}
	if !schedule.IsSlotStart(req.Time, w.Start, w.End, w.SlotDurationMinutes) {
		return apperrors.Wrap(apperrors.ErrOutsideSchedule,
			fmt.Errorf("%s is not a slot of %s-%s every %d minutes", req.Time, w.Start, w.End, w.SlotDurationMinutes))
	}
	return nil
}

// book is one attempt at the critical section. It is safe to repeat after
// a transient error because nothing it wrote survived the rollback.
func (s *Service) book(ctx context.Context, req *model.BookingRequest, branch *model.Branch) (*model.Appointment, bool, error) {
	var (
		apt      *model.Appointment
		replayed bool
	)
	key := repository.BookingKey{BranchID: req.BranchID, Date: req.Date, BeneficiaryID: req.BeneficiaryID}

	err := s.store.WithBookingLock(ctx, key, func(tx repository.BookingTx) error {
		if req.IdempotencyKey != "" {
			existing, err := tx.FindByIdempotencyKey(ctx, req.BeneficiaryID, req.IdempotencyKey)
			if err == nil {
				apt, replayed = existing, true
				return nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("failed to look up idempotency key: %w", err)
			}
		}

		if err := s.guard.Check(ctx, tx, req); err != nil {
			return err
		}

		code, err := s.allocator.Mint(ctx, tx.NextSequence, branch.ID, branch.Code, s.allocator.CurrentYear())
		if err != nil {
			return err
		}

		now := s.now()
		apt = &model.Appointment{
			Base:            model.Base{ID: uuid.New()},
			BeneficiaryID:   req.BeneficiaryID,
			BranchID:        req.BranchID,
			ServiceTypeID:   req.ServiceTypeID,
			AppointmentDate: req.Date,
			AppointmentTime: req.Time,
			DurationMinutes: req.DurationMinutes,
			Status:          model.AppointmentStatusRequested,
			Priority:        req.Priority,
			AppointmentCode: code,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			apt.IdempotencyKey = &key
		}
		apt.Touch(now)
		if err := tx.CreateAppointment(ctx, apt); err != nil {
			return err
		}

		if err := tx.AddStatusHistory(ctx, &model.AppointmentStatusHistory{
			AppointmentID: apt.ID,
			ToStatus:      model.AppointmentStatusRequested,
			ChangedAt:     now,
		}); err != nil {
			return err
		}

		evt, err := event.Booked(apt, now)
		if err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, evt)
	})
	if err != nil {
		return nil, false, err
	}
	return apt, replayed, nil
}

// bookingError maps what escaped the critical section onto the API
// taxonomy. A unique violation on the slot index means a concurrent
// booking won the slot.
func (s *Service) bookingError(err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrIdempotencyKeyUsed):
		return apperrors.NewConflict("idempotency key already used", err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.Wrap(apperrors.ErrSlotConflict, err)
	}
	s.log.Error(err, "booking failed")
	return repository.ToAppError("appointment", err)
}

// UpdateStatus moves an appointment along REQUESTED -> CONFIRMED and
// REQUESTED/CONFIRMED -> COMPLETED/CANCELLED, recording history and a
// status_changed event.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to model.AppointmentStatus, reason string) (*model.Appointment, error) {
	if !to.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown status %q", to), nil)
	}

	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, repository.ToAppError("appointment", err)
	}
	from := apt.Status
	if !from.CanTransitionTo(to) {
		return nil, apperrors.NewConflict(fmt.Sprintf("cannot move appointment from %s to %s", from, to), nil)
	}

	now := s.now()
	history := &model.AppointmentStatusHistory{
		AppointmentID: id,
		FromStatus:    from,
		ToStatus:      to,
		Reason:        reason,
		ChangedAt:     now,
	}
	evt, err := event.StatusChanged(id, from, to, reason, now)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	err = retry.Do(ctx, s.opts.Retry, repository.IsTransient, func(error) {
		s.metrics.StorageRetries.WithLabelValues("update_status").Inc()
	}, func() error {
		return s.appointments.UpdateStatus(ctx, id, from, to, history, evt)
	})
	if err != nil {
		return nil, repository.ToAppError("appointment", err)
	}

	s.metrics.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
	s.log.Info("appointment status changed",
		"appointment_id", id, "from", string(from), "to", string(to))

	apt.Status = to
	apt.UpdatedAt = now
	return apt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, repository.ToAppError("appointment", err)
	}
	return apt, nil
}

func (s *Service) History(ctx context.Context, id uuid.UUID) ([]*model.AppointmentStatusHistory, error) {
	if _, err := s.appointments.Get(ctx, id); err != nil {
		return nil, repository.ToAppError("appointment", err)
	}
	history, err := s.appointments.ListHistory(ctx, id)
	if err != nil {
		return nil, repository.ToAppError("appointment", err)
	}
	return history, nil
}
