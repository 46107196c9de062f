package statemanager

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/internal/pkg/utils/fileutils"
)

// Manager is a generic wrapper around a state object T which is serialized to the storage as JSON.
// Mutations hold an exclusive file lock and replace the file atomically.
type Manager[T any] struct {
	state T
	path  string
}

// New initializes a state manager with the provided state and overwrites existing state.
func New[T any](initialState T, p string) (*Manager[T], error) {
	m := Manager[T]{
		state: initialState,
		path:  p,
	}
	if err := m.Commit(); err != nil {
		log.WithError(err).Debug("failed to initialize state")
		return nil, err
	}
	return &m, nil
}

// NewFromDisk initializes a state manager with the state that exists on disk,
// if nothing usable is found on the disk it uses the provided default.
func NewFromDisk[T any](defaultState T, path string) (*Manager[T], error) {
	m := Manager[T]{
		state: defaultState,
		path:  path,
	}
	if _, err := m.Load(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manager[T]) lock() *flock.Flock {
	return flock.New(m.path + ".lock")
}

// Path returns the location of the state file.
func (m *Manager[T]) Path() string {
	return m.path
}

// State returns the in-memory state as of the last Load, Commit or ModifyState.
func (m *Manager[T]) State() T {
	return m.state
}

// Commit acquires an exclusive lock, then atomically writes the current state to the file.
func (m *Manager[T]) Commit() error {
	l := m.lock()
	if err := l.Lock(); err != nil {
		return err
	}
	defer func() {
		_ = l.Unlock()
	}()
	return m.write()
}

// Load acquires a shared lock, then reads and decodes the state from the file.
// Missing, empty and undecodable files leave the in-memory state untouched.
func (m *Manager[T]) Load() (*T, error) {
	l := m.lock()
	if err := l.RLock(); err != nil {
		return nil, err
	}
	defer func() {
		_ = l.Unlock()
	}()
	if err := m.read(); err != nil {
		return nil, err
	}
	return &m.state, nil
}

// ModifyState acquires an exclusive lock and loads the current state.
// It then calls the callback function on the state to modify it before writing back to disk.
// The file is left untouched if the callback fails.
func (m *Manager[T]) ModifyState(cb func(*T) error) error {
	l := m.lock()
	if err := l.Lock(); err != nil {
		return err
	}
	defer func() {
		_ = l.Unlock()
	}()
	if err := m.read(); err != nil {
		return err
	}
	next := m.state
	if err := cb(&next); err != nil {
		return err
	}
	m.state = next
	return m.write()
}

func (m *Manager[T]) read() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	decoded := m.state
	if err := json.Unmarshal(data, &decoded); err != nil {
		var syntaxError *json.SyntaxError
		var typeError *json.UnmarshalTypeError
		if errors.As(err, &syntaxError) || errors.As(err, &typeError) {
			log.WithError(err).Warnf("ignoring corrupt state file %s", m.path)
			return nil
		}
		return err
	}
	m.state = decoded
	return nil
}

func (m *Manager[T]) write() error {
	return fileutils.SafeWriteJson(m.path, &m.state)
}
