// Package availability filters enumerated slots against existing bookings.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/internal/service/schedule"
)

// FreeSlots keeps the slots that have no entry in booked, preserving order.
func FreeSlots(slots []model.Clock, booked map[model.Clock]struct{}) []model.Clock {
	free := make([]model.Clock, 0, len(slots))
	for _, slot := range slots {
		if _, taken := booked[slot]; !taken {
			free = append(free, slot)
		}
	}
	return free
}

// FirstOpening is the earliest date in a scan that had a free slot.
type FirstOpening struct {
	Date                time.Time   `json:"date"`
	Time                model.Clock `json:"time"`
	SlotDurationMinutes int         `json:"slot_duration_minutes"`
	FreeSlots           int         `json:"free_slots"`
	AvailableSlots      int         `json:"available_slots"`
}

type Service struct {
	calendar     *schedule.Calendar
	appointments repository.AppointmentRepository
}

func NewService(calendar *schedule.Calendar, appointments repository.AppointmentRepository) *Service {
	return &Service{calendar: calendar, appointments: appointments}
}

// DaySlots reports the free slots of one branch on one date. Booked times
// are fetched in one query for the whole day.
func (s *Service) DaySlots(ctx context.Context, branchID uuid.UUID, date time.Time, serviceTypeID *uuid.UUID) (*model.DaySlots, error) {
	date = model.Date(date)
	w, err := s.calendar.Resolve(ctx, branchID, date, serviceTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve calendar: %w", err)
	}

	day := &model.DaySlots{
		BranchID:     branchID,
		Date:         date,
		Open:         w.Open,
		ClosedReason: w.ClosedReason,
		FreeSlots:    []model.Clock{},
	}
	if !w.Open {
		return day, nil
	}

	booked, err := s.appointments.BookedTimes(ctx, branchID, date, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	day.SlotDurationMinutes = w.SlotDurationMinutes
	day.FreeSlots = FreeSlots(w.Slots(), booked[date])
	day.TotalSlots = w.TotalSlots
	day.AvailableSlots = reportedAvailable(w, len(day.FreeSlots))
	return day, nil
}

// FirstAvailable scans days dates from from onward and returns the first
// one with at least one free slot, or nil when the window has none. It
// issues a fixed number of queries regardless of days.
func (s *Service) FirstAvailable(ctx context.Context, branchID uuid.UUID, from time.Time, days int, serviceTypeID *uuid.UUID) (*FirstOpening, error) {
	from = model.Date(from)
	bc, err := s.calendar.Load(ctx, branchID, from, days, serviceTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar: %w", err)
	}
	booked, err := s.appointments.BookedTimes(ctx, branchID, from, from.AddDate(0, 0, days-1))
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := from.AddDate(0, 0, i)
		w := bc.Window(date)
		if !w.Open {
			continue
		}
		free := FreeSlots(w.Slots(), booked[date])
		if len(free) == 0 {
			continue
		}
		return &FirstOpening{
			Date:                date,
			Time:                free[0],
			SlotDurationMinutes: w.SlotDurationMinutes,
			FreeSlots:           len(free),
			AvailableSlots:      reportedAvailable(w, len(free)),
		}, nil
	}
	return nil, nil
}

// reportedAvailable is the override's figure when one applies, else the
// number of free slots.
func reportedAvailable(w schedule.Window, free int) int {
	if w.Overridden {
		return w.AvailableSlots
	}
	return free
}
