package slotctrl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RootFsStatus is the persisted health marker of a slot's root filesystem.
type RootFsStatus uint8

const (
	Normal RootFsStatus = iota
	UpdateInProcess
	UpdateDone
	Unbootable
)

var ErrInvalidStatus = errors.New("invalid rootfs status")

var statusNames = map[RootFsStatus]string{
	Normal:          "normal",
	UpdateInProcess: "update-in-process",
	UpdateDone:      "update-done",
	Unbootable:      "unbootable",
}

func (s RootFsStatus) Valid() bool {
	return s <= Unbootable
}

func (s RootFsStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%d)", uint8(s))
}

// StatusFromByte decodes a persisted status byte.
func StatusFromByte(b byte) (RootFsStatus, error) {
	s := RootFsStatus(b)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %#02x", ErrInvalidStatus, b)
	}
	return s, nil
}

// ParseStatus accepts status names (case-insensitive, "_" and "-" interchangeable) and digits 0-3.
func ParseStatus(v string) (RootFsStatus, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "_", "-")
	for s, name := range statusNames {
		if norm == name || norm == strings.ReplaceAll(name, "-", "") {
			return s, nil
		}
	}
	n, err := strconv.ParseUint(norm, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return StatusFromByte(byte(n))
}
