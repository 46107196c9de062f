package slot

import (
	"errors"
	"fmt"
	"strings"
)

// Slot identifies one of the two redundant system images.
// The numeric values match the byte the firmware stores for a slot.
type Slot uint8

const (
	A Slot = 0
	B Slot = 1
)

// ErrInvalidSlot is returned when a value cannot be interpreted as a slot.
var ErrInvalidSlot = errors.New("invalid slot")

// Opposite returns the other slot.
func (s Slot) Opposite() Slot {
	if s == A {
		return B
	}
	return A
}

// Valid reports whether s is A or B.
func (s Slot) Valid() bool {
	return s == A || s == B
}

// String formats the slot lowercase, which is what the partition labels use.
func (s Slot) String() string {
	switch s {
	case A:
		return "a"
	case B:
		return "b"
	default:
		return fmt.Sprintf("slot(%d)", uint8(s))
	}
}

// FromByte converts a persisted byte into a Slot.
func FromByte(b byte) (Slot, error) {
	s := Slot(b)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %#x", ErrInvalidSlot, b)
	}
	return s, nil
}

// Parse accepts "a", "b", "0" and "1" in any case.
func Parse(v string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "a", "0":
		return A, nil
	case "b", "1":
		return B, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, v)
	}
}

// MarshalText implements encoding.TextMarshaler so slots serialize as "a"/"b".
func (s Slot) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Slot) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
