// Package installer writes component payloads into the inactive slot or the capsule staging area.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/internal/pkg/metrics"
	"github.com/unbasical/slotupdate/pkg/client/updater/manifest"
	"github.com/unbasical/slotupdate/pkg/slot"
)

var (
	ErrDeviceTooSmall        = errors.New("destination device is too small")
	ErrPayloadTooLarge       = errors.New("payload is larger than its target area")
	ErrESPPartitionNotFound  = errors.New("no EFI system partition found")
	ErrMultipleESPPartitions = errors.New("multiple EFI system partitions found")
	ErrPartitionNodeNotFound = errors.New("no device node for partition")
	ErrUnsupportedTarget     = errors.New("unsupported component target")
)

// ComponentInstaller writes one component for the given target slot.
type ComponentInstaller interface {
	Install(ctx context.Context, c manifest.Component, target slot.Slot, src io.ReadSeeker) error
}

// Dispatcher picks the installer matching a component's target type.
type Dispatcher struct {
	Raw     ComponentInstaller
	Capsule ComponentInstaller
}

func (d *Dispatcher) Install(ctx context.Context, c manifest.Component, target slot.Slot, src io.ReadSeeker) (err error) {
	var inst ComponentInstaller
	switch c.Target.Type {
	case manifest.TargetRaw:
		inst = d.Raw
	case manifest.TargetCapsule:
		inst = d.Capsule
	}
	if inst == nil {
		return fmt.Errorf("%w: %q for %s", ErrUnsupportedTarget, c.Target.Type, c.Name)
	}
	kind := string(c.Target.Type)
	metrics.ComponentInstalls.WithLabelValues(kind, metrics.StatusStarted).Inc()
	start := time.Now()
	defer func() {
		if err != nil {
			metrics.ComponentInstalls.WithLabelValues(kind, metrics.StatusWriteError).Inc()
			return
		}
		metrics.ComponentInstalls.WithLabelValues(kind, metrics.StatusWriteComplete).Inc()
		metrics.InstallDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()
	log.WithField("component", c.Name).Infof("installing %s component into slot %s", kind, target)
	return inst.Install(ctx, c, target, src)
}

func sourceLen(src io.Seeker) (int64, error) {
	n, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to determine source length: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return n, nil
}
