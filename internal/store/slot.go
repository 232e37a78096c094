package store

import (
	"errors"
	"slices"
	"sync"
)

// ErrSlotEmpty is returned by Slot.Read when nothing was ever written under key.
var ErrSlotEmpty = errors.New("store: slot is empty")

// Slot is a durable key-value location holding one serialized value per key.
// Writes replace the whole value.
type Slot interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
}

// MemorySlot keeps values in process memory. It is used for tests and
// ephemeral sessions.
type MemorySlot struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{values: make(map[string][]byte)}
}

func (m *MemorySlot) Read(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrSlotEmpty
	}
	return slices.Clone(v), nil
}

func (m *MemorySlot) Write(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = slices.Clone(data)
	return nil
}
