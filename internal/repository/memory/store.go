// Package memory holds mutex-guarded implementations of the storage
// contracts. They keep the same uniqueness and atomicity guarantees as the
// postgres store and back local runs and service tests.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

type sequenceKey struct {
	branchID uuid.UUID
	year     int
}

// Store is one in-memory database. Its repository views share the data.
type Store struct {
	mu           sync.RWMutex
	rules        map[uuid.UUID]model.WeeklyScheduleRule
	holidays     map[uuid.UUID]model.HolidayException
	overrides    map[uuid.UUID]model.DailyCapacityOverride
	appointments map[uuid.UUID]model.Appointment
	history      []model.AppointmentStatusHistory
	sequences    map[sequenceKey]model.AppointmentSequence
	outbox       map[uuid.UUID]model.OutboxEvent

	branches     map[uuid.UUID]model.Branch
	serviceTypes map[uuid.UUID]model.ServiceType
	offers       map[uuid.UUID]map[uuid.UUID]bool // serviceTypeID -> branchIDs

	locks    *keyedMutex
	outboxMu sync.Mutex
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		rules:        map[uuid.UUID]model.WeeklyScheduleRule{},
		holidays:     map[uuid.UUID]model.HolidayException{},
		overrides:    map[uuid.UUID]model.DailyCapacityOverride{},
		appointments: map[uuid.UUID]model.Appointment{},
		sequences:    map[sequenceKey]model.AppointmentSequence{},
		outbox:       map[uuid.UUID]model.OutboxEvent{},
		branches:     map[uuid.UUID]model.Branch{},
		serviceTypes: map[uuid.UUID]model.ServiceType{},
		offers:       map[uuid.UUID]map[uuid.UUID]bool{},
		locks:        newKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// keyedMutex hands out one mutex per string key. Entries are dropped when
// no goroutine holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedEntry{}}
}

// Lock blocks until key is free and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
