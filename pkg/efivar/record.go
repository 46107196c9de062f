package efivar

import "errors"

const (
	// RecordLen is the size of the records used for slot and rootfs state.
	RecordLen = 8
	// PayloadOffset is the index of the value byte, right after the attribute header.
	PayloadOffset = 4
	// DefaultAttributes is NON_VOLATILE | BOOTSERVICE_ACCESS | RUNTIME_ACCESS.
	DefaultAttributes = 0x07
)

// Store persists fixed-length records keyed by variable name.
type Store interface {
	// ReadFixedLen returns the full record, failing with ErrNotFound if it does not exist
	// and *LengthMismatchError if its size differs from expectedLen.
	ReadFixedLen(name string, expectedLen int) ([]byte, error)
	// Write replaces an existing record. buf must be the entire record.
	// Write protection is restored regardless of the outcome.
	Write(name string, buf []byte) error
	// CreateAndWrite creates a record that does not exist yet.
	CreateAndWrite(name string, buf []byte) error
	// Remove deletes the record, failing with ErrNotFound if it does not exist.
	Remove(name string) error
}

// NewRecord returns a record with default attributes and v as payload.
func NewRecord(v byte) []byte {
	buf := make([]byte, RecordLen)
	buf[0] = DefaultAttributes
	buf[PayloadOffset] = v
	return buf
}

// Payload returns the value byte of a record.
func Payload(buf []byte) byte {
	return buf[PayloadOffset]
}

// WithPayload returns a copy of buf with the value byte replaced.
func WithPayload(buf []byte, v byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	out[PayloadOffset] = v
	return out
}

func checkLen(name string, buf []byte, expectedLen int) error {
	if len(buf) != expectedLen {
		return &LengthMismatchError{Name: name, Expected: expectedLen, Actual: len(buf)}
	}
	return nil
}

// Exists reports whether the variable is present. Size mismatches are reported as errors.
func Exists(s Store, name string, expectedLen int) (bool, error) {
	_, err := s.ReadFixedLen(name, expectedLen)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
