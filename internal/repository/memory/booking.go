package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
)

func sequenceLockKey(branchID uuid.UUID, year int) string {
	return fmt.Sprintf("sequence|%s|%d", branchID, year)
}

// advanceSequence issues the current number of (branch, year) and moves the
// counter on. The caller holds the sequence lock for the key. The returned
// undo restores the previous counter state.
func (s *Store) advanceSequence(branchID uuid.UUID, branchCode string, year, maxNumber int) (int, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sequenceKey{branchID: branchID, year: year}
	prev, existed := s.sequences[key]
	seq := prev
	if !existed {
		seq = model.AppointmentSequence{
			BranchID:      branchID,
			BranchCode:    branchCode,
			Year:          year,
			CurrentNumber: 1,
			MaxNumber:     maxNumber,
		}
		seq.Touch(s.now())
	}
	if seq.Exhausted() {
		return 0, nil, fmt.Errorf("branch %s year %d: %w", branchID, year, repository.ErrExhausted)
	}

	issued := seq.CurrentNumber
	seq.CurrentNumber++
	seq.TotalCreated++
	seq.Version++
	seq.UpdatedAt = s.now()
	s.sequences[key] = seq

	undo := func() {
		if existed {
			s.sequences[key] = prev
		} else {
			delete(s.sequences, key)
		}
	}
	return issued, undo, nil
}

type sequences struct{ s *Store }

func (s *Store) Sequences() repository.SequenceRepository { return sequences{s} }

func (r sequences) Next(ctx context.Context, branchID uuid.UUID, branchCode string, year, maxNumber int, onIssued repository.IssuedEvent) (int, error) {
	unlock := r.s.locks.Lock(sequenceLockKey(branchID, year))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, undo, err := r.s.advanceSequence(branchID, branchCode, year, maxNumber)
	if err != nil {
		return 0, err
	}
	if onIssued == nil {
		return n, nil
	}

	event, err := onIssued(n)
	if err == nil && (event == nil || event.Payload == nil) {
		err = fmt.Errorf("event payload cannot be nil")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err != nil {
		undo()
		return 0, fmt.Errorf("failed to build sequence event: %w", err)
	}
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	r.s.outbox[event.ID] = *event
	return n, nil
}

func (r sequences) Get(_ context.Context, branchID uuid.UUID, year int) (*model.AppointmentSequence, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	seq, ok := r.s.sequences[sequenceKey{branchID: branchID, year: year}]
	if !ok {
		return nil, fmt.Errorf("sequence %s/%d: %w", branchID, year, repository.ErrNotFound)
	}
	return &seq, nil
}

type bookingStore struct{ s *Store }

func (s *Store) BookingStore() repository.BookingStore { return bookingStore{s} }

func (b bookingStore) WithBookingLock(ctx context.Context, key repository.BookingKey, fn func(tx repository.BookingTx) error) error {
	releaseBeneficiary := b.s.locks.Lock("beneficiary|" + key.BeneficiaryID.String())
	defer releaseBeneficiary()
	releaseDay := b.s.locks.Lock(key.BranchID.String() + "|" + model.Date(key.Date).Format(model.DateLayout))
	defer releaseDay()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &bookingTx{s: b.s, held: map[string]func(){}}
	defer tx.release()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := tx.commit(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// bookingTx stages writes until commit. Sequence advances are applied
// immediately under their key lock, which is held until the transaction
// ends, and undone on rollback.
type bookingTx struct {
	s            *Store
	held         map[string]func()
	undo         []func()
	appointments []model.Appointment
	history      []model.AppointmentStatusHistory
	events       []model.OutboxEvent
}

func (t *bookingTx) visibleAppointments() []model.Appointment {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	all := make([]model.Appointment, 0, len(t.s.appointments)+len(t.appointments))
	for _, a := range t.s.appointments {
		all = append(all, a)
	}
	return append(all, t.appointments...)
}

func (t *bookingTx) FindByIdempotencyKey(_ context.Context, beneficiaryID uuid.UUID, key string) (*model.Appointment, error) {
	for _, a := range t.visibleAppointments() {
		if a.BeneficiaryID == beneficiaryID && a.IdempotencyKey != nil && *a.IdempotencyKey == key {
			a := a
			return &a, nil
		}
	}
	return nil, fmt.Errorf("idempotency key %q: %w", key, repository.ErrNotFound)
}

func (t *bookingTx) SlotTaken(_ context.Context, branchID uuid.UUID, date time.Time, at model.Clock) (bool, error) {
	for _, a := range t.visibleAppointments() {
		if a.HoldsSlot() && a.BranchID == branchID && model.SameDate(a.AppointmentDate, date) && a.AppointmentTime == at {
			return true, nil
		}
	}
	return false, nil
}

func (t *bookingTx) HasActiveOnDate(_ context.Context, beneficiaryID, serviceTypeID uuid.UUID, date time.Time) (bool, error) {
	for _, a := range t.visibleAppointments() {
		if a.HoldsSlot() && a.BeneficiaryID == beneficiaryID && a.ServiceTypeID == serviceTypeID && model.SameDate(a.AppointmentDate, date) {
			return true, nil
		}
	}
	return false, nil
}

func (t *bookingTx) HasActiveForService(_ context.Context, beneficiaryID, serviceTypeID uuid.UUID) (bool, error) {
	for _, a := range t.visibleAppointments() {
		if a.HoldsSlot() && a.BeneficiaryID == beneficiaryID && a.ServiceTypeID == serviceTypeID {
			return true, nil
		}
	}
	return false, nil
}

func (t *bookingTx) NextSequence(ctx context.Context, branchID uuid.UUID, branchCode string, year, maxNumber int) (int, error) {
	key := sequenceLockKey(branchID, year)
	if _, ok := t.held[key]; !ok {
		t.held[key] = t.s.locks.Lock(key)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, undo, err := t.s.advanceSequence(branchID, branchCode, year, maxNumber)
	if err != nil {
		return 0, err
	}
	t.undo = append(t.undo, undo)
	return n, nil
}

func (t *bookingTx) CreateAppointment(_ context.Context, apt *model.Appointment) error {
	apt.Touch(t.s.now())
	apt.AppointmentDate = model.Date(apt.AppointmentDate)
	t.appointments = append(t.appointments, *apt)
	return nil
}

func (t *bookingTx) AddStatusHistory(_ context.Context, entry *model.AppointmentStatusHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = t.s.now()
	}
	t.history = append(t.history, *entry)
	return nil
}

func (t *bookingTx) EnqueueEvent(_ context.Context, event *model.OutboxEvent) error {
	if event == nil || event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	t.events = append(t.events, *event)
	return nil
}

// commit applies the staged writes, enforcing the same uniqueness the
// postgres indexes enforce.
func (t *bookingTx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for i := range t.appointments {
		apt := &t.appointments[i]
		for _, other := range t.s.appointments {
			if apt.HoldsSlot() && other.HoldsSlot() && other.BranchID == apt.BranchID &&
				other.AppointmentDate.Equal(apt.AppointmentDate) && other.AppointmentTime == apt.AppointmentTime {
				return fmt.Errorf("slot %s %s: %w", apt.AppointmentDate.Format(model.DateLayout), apt.AppointmentTime, repository.ErrDuplicate)
			}
			if apt.IdempotencyKey != nil && other.IdempotencyKey != nil &&
				other.BeneficiaryID == apt.BeneficiaryID && *other.IdempotencyKey == *apt.IdempotencyKey {
				return fmt.Errorf("%w: %w", repository.ErrIdempotencyKeyUsed, repository.ErrDuplicate)
			}
		}
	}

	for _, apt := range t.appointments {
		t.s.appointments[apt.ID] = apt
	}
	t.s.history = append(t.s.history, t.history...)
	for _, evt := range t.events {
		t.s.outbox[evt.ID] = evt
	}
	t.undo = nil
	return nil
}

func (t *bookingTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *bookingTx) release() {
	for _, unlock := range t.held {
		unlock()
	}
	t.held = nil
}

type appointments struct{ s *Store }

func (s *Store) Appointments() repository.AppointmentRepository { return appointments{s} }

// SeedAppointment stores apt as already committed, bypassing the booking
// path.
func (s *Store) SeedAppointment(apt model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apt.Touch(s.now())
	apt.AppointmentDate = model.Date(apt.AppointmentDate)
	s.appointments[apt.ID] = apt
}

func (r appointments) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	apt, ok := r.s.appointments[id]
	if !ok || apt.IsDeleted {
		return nil, fmt.Errorf("appointment %s: %w", id, repository.ErrNotFound)
	}
	return &apt, nil
}

func (r appointments) BookedTimes(_ context.Context, branchID uuid.UUID, from, to time.Time) (map[time.Time]map[model.Clock]struct{}, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	from, to = model.Date(from), model.Date(to)
	booked := make(map[time.Time]map[model.Clock]struct{})
	for _, a := range r.s.appointments {
		if !a.HoldsSlot() || a.BranchID != branchID || a.AppointmentDate.Before(from) || a.AppointmentDate.After(to) {
			continue
		}
		day := model.Date(a.AppointmentDate)
		if booked[day] == nil {
			booked[day] = make(map[model.Clock]struct{})
		}
		booked[day][a.AppointmentTime] = struct{}{}
	}
	return booked, nil
}

func (r appointments) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.AppointmentStatus, history *model.AppointmentStatusHistory, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	apt, ok := r.s.appointments[id]
	if !ok || apt.IsDeleted {
		return fmt.Errorf("appointment %s: %w", id, repository.ErrNotFound)
	}
	if apt.Status != from {
		return fmt.Errorf("appointment %s is no longer %s: %w", id, from, repository.ErrStaleVersion)
	}

	now := r.s.now()
	apt.Status = to
	apt.UpdatedAt = now
	r.s.appointments[id] = apt

	if history.ID == uuid.Nil {
		history.ID = uuid.New()
	}
	if history.ChangedAt.IsZero() {
		history.ChangedAt = now
	}
	r.s.history = append(r.s.history, *history)
	if event != nil {
		r.s.outbox[event.ID] = *event
	}
	return nil
}

func (r appointments) ListHistory(_ context.Context, appointmentID uuid.UUID) ([]*model.AppointmentStatusHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.AppointmentStatusHistory
	for _, h := range r.s.history {
		if h.AppointmentID == appointmentID {
			h := h
			out = append(out, &h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangedAt.Before(out[j].ChangedAt) })
	return out, nil
}
