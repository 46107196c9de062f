package validator

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/pkg/client/updater/manifest"
	"github.com/unbasical/slotupdate/pkg/client/updater/versions"
	"github.com/unbasical/slotupdate/pkg/slot"
)

var (
	ErrVersionAssert = errors.New("component version does not match the installed version")
	ErrSizeLimit     = errors.New("update exceeds size limit")
)

// ManifestValidator defines an interface for validating a manifest before anything gets installed.
type ManifestValidator interface {
	Validate(m *manifest.Manifest) error
}

// All runs validators in order and returns the first error.
type All []ManifestValidator

func (a All) Validate(m *manifest.Manifest) error {
	for _, v := range a {
		if err := v.Validate(m); err != nil {
			return err
		}
	}
	return nil
}

// SizeLimitedValidator ensures that the summed component sizes do not exceed Limit bytes.
type SizeLimitedValidator struct {
	Limit uint64
}

func (s SizeLimitedValidator) Validate(m *manifest.Manifest) error {
	var total uint64
	for _, c := range m.Components {
		// checked before adding so the sum cannot wrap around
		if c.Size > s.Limit || total > s.Limit-c.Size {
			return fmt.Errorf("%w: component %q exceeds the limit of %d bytes", ErrSizeLimit, c.Name, s.Limit)
		}
		total += c.Size
	}
	return nil
}

// VersionAssertValidator checks every component's version-assert against the versions
// recorded for the active slot.
// Redundant components must match exactly. Singles may also already carry the target
// version, which happens when an earlier attempt got interrupted after installing them.
// Components unknown to the device are accepted.
type VersionAssertValidator struct {
	Versions *versions.Versions
	Active   slot.Slot
}

func (v VersionAssertValidator) Validate(m *manifest.Manifest) error {
	for _, c := range m.Components {
		logger := log.WithField("component", c.Name)
		if onDisk, ok := v.redundant(c.Name); ok {
			if onDisk != c.VersionAssert {
				return fmt.Errorf("%w: redundant component %q is %q in slot %s, manifest asserts %q",
					ErrVersionAssert, c.Name, onDisk, v.Active, c.VersionAssert)
			}
			continue
		}
		onDisk, ok := v.Versions.Singles[c.Name]
		switch {
		case !ok:
			logger.Info("component is not present in versions on device")
		case onDisk == c.VersionAssert:
			logger.Debug("on disk version matches asserted version")
		case onDisk == c.Version:
			logger.Debug("on disk version matches target version, was it previously updated?")
		default:
			return fmt.Errorf("%w: single component %q is %q, manifest asserts %q and targets %q",
				ErrVersionAssert, c.Name, onDisk, c.VersionAssert, c.Version)
		}
	}
	return nil
}

func (v VersionAssertValidator) redundant(name string) (string, bool) {
	group := v.Versions.SlotA
	if v.Active == slot.B {
		group = v.Versions.SlotB
	}
	version, ok := group[name]
	return version, ok
}
