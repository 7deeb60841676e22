package unitstatus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/firefly-dispatch/firefly/core/model"
)

// ErrUnknownUnit is returned for operations against an unregistered unit id.
var ErrUnknownUnit = errors.New("unknown unit")

// ErrClaimRace is returned when a compare-and-set transition loses to a
// concurrent update: the unit's current status no longer matches the
// expected one.
var ErrClaimRace = errors.New("unit status changed concurrently")

// Filter restricts List results. Zero values match everything.
type Filter struct {
	Type   model.UnitType
	Status model.UnitStatus
}

// Store holds the authoritative status and location of every known unit.
// Transition is the only way to change a status; it is atomic so two dispatch
// attempts can never both claim the same unit.
type Store interface {
	Put(model.Unit)
	Get(id string) (model.Unit, bool)
	List(Filter) []model.Unit
	Transition(id string, from, to model.UnitStatus) error
	SetLocation(id string, loc model.Location)
}

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.Unit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.Unit{}}
}

// Put inserts or replaces the unit record.
func (s *MemoryStore) Put(u model.Unit) {
	s.mu.Lock()
	s.data[u.ID] = u
	s.mu.Unlock()
}

// Get returns the unit record if present.
func (s *MemoryStore) Get(id string) (model.Unit, bool) {
	s.mu.RLock()
	u, ok := s.data[id]
	s.mu.RUnlock()
	return u, ok
}

// List returns units matching the filter, sorted by id for stable output.
func (s *MemoryStore) List(f Filter) []model.Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Unit, 0, len(s.data))
	for _, u := range s.data {
		if f.Type != "" && u.Type != f.Type {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Transition atomically moves the unit from one status to another. It fails
// with ErrClaimRace if the current status does not match the expected one,
// and rejects steps the unit lifecycle does not allow.
func (s *MemoryStore) Transition(id string, from, to model.UnitStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	if u.Status != from {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrClaimRace, id, u.Status, from)
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("illegal transition %s -> %s for unit %s", from, to, id)
	}
	u.Status = to
	s.data[id] = u
	return nil
}

// SetLocation updates the last known position of the unit. Unknown ids are
// ignored; position reports may race unit registration.
func (s *MemoryStore) SetLocation(id string, loc model.Location) {
	s.mu.Lock()
	if u, ok := s.data[id]; ok {
		u.Location = loc
		s.data[id] = u
	}
	s.mu.Unlock()
}
