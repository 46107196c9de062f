package installer

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/pkg/client/updater/manifest"
	"github.com/unbasical/slotupdate/pkg/slot"
)

// Device is an open destination such as a block device.
type Device interface {
	io.WriteSeeker
	io.Closer
	Sync() error
}

// Raw writes payloads to fixed offsets of block devices.
type Raw struct {
	open func(path string) (Device, error)
}

// WithDeviceOpener replaces how destination devices are opened.
func WithDeviceOpener(open func(path string) (Device, error)) func(*Raw) {
	return func(r *Raw) {
		r.open = open
	}
}

func NewRaw(options ...func(*Raw)) *Raw {
	r := &Raw{
		open: func(path string) (Device, error) {
			f, err := os.OpenFile(path, os.O_WRONLY, 0)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Offset returns where the component starts for target. The second copy of a
// redundant component sits directly behind the first one.
func Offset(c manifest.Component, target slot.Slot) int64 {
	if target == slot.B && c.Redundant() {
		return c.Target.Offset + c.Target.Size
	}
	return c.Target.Offset
}

func (r *Raw) Install(_ context.Context, c manifest.Component, target slot.Slot, src io.ReadSeeker) error {
	if !target.Valid() {
		return slot.ErrInvalidSlot
	}
	offset := Offset(c, target)
	srcLen, err := sourceLen(src)
	if err != nil {
		return err
	}
	// a redundant payload overflowing its area would spill into the other slot's copy
	if c.Target.Size > 0 && srcLen > c.Target.Size {
		return fmt.Errorf("%w: component %q has %d bytes, target area holds %d",
			ErrPayloadTooLarge, c.Name, srcLen, c.Target.Size)
	}
	dev, err := r.open(c.Target.Device)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.Target.Device, err)
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			log.WithError(cerr).Warnf("failed to close %s", c.Target.Device)
		}
	}()
	destLen, err := dev.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to determine length of %s: %w", c.Target.Device, err)
	}
	if destLen < offset+srcLen {
		return fmt.Errorf("%w: %s has %d bytes, need %d at offset %d",
			ErrDeviceTooSmall, c.Target.Device, destLen, srcLen, offset)
	}
	if _, err := dev.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek %s to %d: %w", c.Target.Device, offset, err)
	}
	log.WithField("component", c.Name).Debugf("writing %d bytes to %s at offset %d", srcLen, c.Target.Device, offset)
	n, err := io.Copy(dev, src)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", c.Target.Device, err)
	}
	if n != srcLen {
		return fmt.Errorf("short write to %s: %d of %d bytes", c.Target.Device, n, srcLen)
	}
	if err := dev.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", c.Target.Device, err)
	}
	return nil
}
