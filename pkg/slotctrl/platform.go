package slotctrl

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/slot"
)

// Platform selects how a slot is committed after a successful boot.
type Platform interface {
	Name() string
	MarkSlotOK(r *RootFsHealth, s slot.Slot) error
}

// SimplePlatform only tracks rootfs status and retry counters.
type SimplePlatform struct{}

func (SimplePlatform) Name() string { return "simple" }

func (SimplePlatform) MarkSlotOK(r *RootFsHealth, s slot.Slot) error {
	if err := r.SetStatus(s, Normal); err != nil {
		return err
	}
	return r.ResetRetryCountToMax(s)
}

// DualPlatform also keeps a boot chain firmware status record for its second
// redundancy mechanism. A leftover record would be ambiguous once the slot is committed.
type DualPlatform struct{}

func (DualPlatform) Name() string { return "dual" }

func (DualPlatform) MarkSlotOK(r *RootFsHealth, s slot.Slot) error {
	err := r.store.Remove(VarBootChainStatus)
	switch {
	case errors.Is(err, efivar.ErrNotFound):
		log.Debug("boot chain firmware status already absent")
	case err != nil:
		return fmt.Errorf("failed to remove boot chain firmware status: %w", err)
	default:
		log.Info("removed boot chain firmware status")
	}
	return SimplePlatform{}.MarkSlotOK(r, s)
}

var ErrUnknownPlatform = errors.New("unknown platform")

// PlatformByName returns the strategy for "simple" or "dual".
func PlatformByName(name string) (Platform, error) {
	switch strings.ToLower(name) {
	case "", "simple":
		return SimplePlatform{}, nil
	case "dual":
		return DualPlatform{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
}
