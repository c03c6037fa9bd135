package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/pkg/geo"
)

// AddBranch registers a branch and the service types it offers.
func (s *Store) AddBranch(branch model.Branch, serviceTypeIDs ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.branches[branch.ID] = branch
	for _, id := range serviceTypeIDs {
		if s.offers[id] == nil {
			s.offers[id] = map[uuid.UUID]bool{}
		}
		s.offers[id][branch.ID] = true
	}
}

func (s *Store) AddServiceType(st model.ServiceType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serviceTypes[st.ID] = st
}

type directory struct{ s *Store }

func (s *Store) Directory() repository.BranchDirectory { return directory{s} }

func (d directory) ListBranchesOfferingService(_ context.Context, serviceTypeID uuid.UUID) ([]uuid.UUID, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	var ids []uuid.UUID
	for id := range d.s.offers[serviceTypeID] {
		if b, ok := d.s.branches[id]; ok && b.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids, nil
}

func (d directory) FindNearbyActiveBranches(_ context.Context, lat, lon, radiusKm float64) ([]*model.Branch, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	var out []*model.Branch
	for _, b := range d.s.branches {
		if !b.IsActive || geo.HaversineKm(lat, lon, b.Latitude, b.Longitude) > radiusKm {
			continue
		}
		b := b
		out = append(out, &b)
	}
	return out, nil
}

func (d directory) GetBranch(_ context.Context, id uuid.UUID) (*model.Branch, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	b, ok := d.s.branches[id]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", id, repository.ErrNotFound)
	}
	return &b, nil
}

func (d directory) GetServiceType(_ context.Context, id uuid.UUID) (*model.ServiceType, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	st, ok := d.s.serviceTypes[id]
	if !ok {
		return nil, fmt.Errorf("service type %s: %w", id, repository.ErrNotFound)
	}
	return &st, nil
}

type outbox struct{ s *Store }

func (s *Store) Outbox() repository.OutboxRepository { return outbox{s} }

// SeedOutboxEvent stores event as already committed.
func (s *Store) SeedOutboxEvent(event model.OutboxEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	s.outbox[event.ID] = event
}

func (o outbox) ClaimPending(_ context.Context, limit, maxRetries int, fn func(events []*model.OutboxEvent) repository.OutboxOutcome) error {
	o.s.outboxMu.Lock()
	defer o.s.outboxMu.Unlock()

	o.s.mu.RLock()
	var pending []*model.OutboxEvent
	for _, e := range o.s.outbox {
		if e.Status == model.OutboxStatusPending {
			e := e
			pending = append(pending, &e)
		}
	}
	o.s.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	if len(pending) == 0 {
		return nil
	}

	outcome := fn(pending)

	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	now := o.s.now()
	for _, id := range outcome.Processed {
		e := o.s.outbox[id]
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
		e.UpdatedAt = now
		o.s.outbox[id] = e
	}
	for id, reason := range outcome.Failed {
		e := o.s.outbox[id]
		msg := reason
		e.RetryCount++
		e.ErrorMessage = &msg
		if e.RetryCount >= maxRetries {
			e.Status = model.OutboxStatusFailed
		}
		e.UpdatedAt = now
		o.s.outbox[id] = e
	}
	return nil
}

func (o outbox) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	var n int64
	for id, e := range o.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(o.s.outbox, id)
			n++
		}
	}
	return n, nil
}

// OutboxEvents returns a snapshot of every stored event, oldest first.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
