// Package correlation holds the pending-command registry: a map from an
// outstanding command id to the single-use slot its caller is waiting on.
package correlation

import (
	"fmt"
	"sync"

	"webdriver-bidi/internal/domain"
)

// Slot is a write-once completion handle. The resolver is its only writer and
// the issuing caller its only reader.
type Slot struct {
	id   uint64
	ch   chan domain.CommandOutcome
	once sync.Once
}

func newSlot(id uint64) *Slot {
	return &Slot{id: id, ch: make(chan domain.CommandOutcome, 1)}
}

// ID returns the command id this slot was registered under.
func (s *Slot) ID() uint64 { return s.id }

// C delivers the outcome exactly once.
func (s *Slot) C() <-chan domain.CommandOutcome { return s.ch }

// fulfill never blocks; a second call is ignored.
func (s *Slot) fulfill(m domain.CommandOutcome) bool {
	delivered := false
	s.once.Do(func() {
		s.ch <- m
		delivered = true
	})
	return delivered
}

// Registry is the set of outstanding commands. All methods are safe for
// concurrent use and hold the lock only for the map operation.
type Registry struct {
	mu    sync.Mutex
	slots map[uint64]*Slot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[uint64]*Slot)}
}

// Insert registers a slot for id. It fails with ErrDuplicateID when id is
// already outstanding.
func (r *Registry) Insert(id uint64) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[id]; ok {
		return nil, fmt.Errorf("insert %d: %w", id, domain.ErrDuplicateID)
	}
	s := newSlot(id)
	r.slots[id] = s
	return s, nil
}

// Has reports whether id is outstanding.
func (r *Registry) Has(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[id]
	return ok
}

// Resolve removes the slot for the outcome's id and fulfills it. It returns
// false when no slot matched, in which case the outcome is an orphan.
func (r *Registry) Resolve(m domain.CommandOutcome) bool {
	id, ok := m.CommandID()
	if !ok {
		return false
	}
	r.mu.Lock()
	s, found := r.slots[id]
	if found {
		delete(r.slots, id)
	}
	r.mu.Unlock()
	if !found {
		return false
	}
	return s.fulfill(m)
}

// Remove drops the slot registered under s.ID if it is still s. Callers use
// it when they stop waiting, so a late outcome finds nothing.
func (r *Registry) Remove(s *Slot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.slots[s.id]; ok && cur == s {
		delete(r.slots, s.id)
		return true
	}
	return false
}

// Len returns the number of outstanding commands.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Drain removes every slot and returns them. Used when the connection ends
// so waiters can be failed early.
func (r *Registry) Drain() []*Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Slot, 0, len(r.slots))
	for id, s := range r.slots {
		out = append(out, s)
		delete(r.slots, id)
	}
	return out
}
