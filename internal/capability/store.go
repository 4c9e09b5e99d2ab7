package capability

import (
	"context"
	"sync"
)

// Store keeps at most one Handle per logical slot.
type Store interface {
	// Put stores h for slot, overwriting any prior value.
	Put(ctx context.Context, slot string, h Handle) error
	// Get returns the handle for slot. Storage faults are logged and
	// reported as absent.
	Get(ctx context.Context, slot string) (Handle, bool)
	// Remove clears slot. It is idempotent and never fails.
	Remove(ctx context.Context, slot string)
}

// DefaultSlot is the slot used for the primary data file binding.
const DefaultSlot = "primary"

// Memory is a process-local Store. Bindings do not survive a restart.
type Memory struct {
	mu    sync.RWMutex
	slots map[string]Handle
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{slots: map[string]Handle{}}
}

func (m *Memory) Put(_ context.Context, slot string, h Handle) error {
	if err := h.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.slots[slot] = h
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, slot string) (Handle, bool) {
	m.mu.RLock()
	h, ok := m.slots[slot]
	m.mu.RUnlock()
	return h, ok
}

func (m *Memory) Remove(_ context.Context, slot string) {
	m.mu.Lock()
	delete(m.slots, slot)
	m.mu.Unlock()
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*DB)(nil)
)
