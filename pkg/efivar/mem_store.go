package efivar

import (
	"fmt"
	"sync"
)

// MemStore is an in-memory Store. It counts mutations per variable so callers can
// check that nothing was written.
type MemStore struct {
	mu      sync.Mutex
	records map[string][]byte
	writes  map[string]int
	// FailWrite, if set, is consulted before every mutation and may return an error.
	FailWrite func(name string) error
}

func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string][]byte),
		writes:  make(map[string]int),
	}
}

// Set stores a record without counting it as a write.
func (m *MemStore) Set(name string, buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = clone(buf)
}

// Get returns the record or nil.
func (m *MemStore) Get(name string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.records[name])
}

// Writes returns how often name was written, created or removed.
func (m *MemStore) Writes(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[name]
}

// TotalWrites returns the number of mutations on all variables.
func (m *MemStore) TotalWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.writes {
		total += n
	}
	return total
}

func (m *MemStore) ReadFixedLen(name string, expectedLen int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := checkLen(name, buf, expectedLen); err != nil {
		return nil, err
	}
	return clone(buf), nil
}

func (m *MemStore) Write(name string, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[name]; !ok {
		return newWriteError(name, StepOpen, fmt.Errorf("%w: %s", ErrNotFound, name))
	}
	if m.FailWrite != nil {
		if err := m.FailWrite(name); err != nil {
			return newWriteError(name, StepWrite, err)
		}
	}
	m.records[name] = clone(buf)
	m.writes[name]++
	return nil
}

func (m *MemStore) CreateAndWrite(name string, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	if m.FailWrite != nil {
		if err := m.FailWrite(name); err != nil {
			return newWriteError(name, StepCreate, err)
		}
	}
	m.records[name] = clone(buf)
	m.writes[name]++
	return nil
}

func (m *MemStore) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.records, name)
	m.writes[name]++
	return nil
}

func clone(buf []byte) []byte {
	if buf == nil {
		return nil
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}
