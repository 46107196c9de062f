package slotctrl

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/slot"
)

var ErrExceedingRetryCount = errors.New("retry counter exceeds the maximum")

// RootFsHealth keeps the per-slot rootfs status and the boot retry counters.
type RootFsHealth struct {
	store    efivar.Store
	platform Platform
}

// NewRootFsHealth creates a RootFsHealth whose MarkSlotOK follows platform.
func NewRootFsHealth(store efivar.Store, platform Platform) *RootFsHealth {
	if platform == nil {
		platform = SimplePlatform{}
	}
	return &RootFsHealth{store: store, platform: platform}
}

// Platform returns the strategy MarkSlotOK uses.
func (r *RootFsHealth) Platform() Platform {
	return r.platform
}

func (r *RootFsHealth) Status(s slot.Slot) (RootFsStatus, error) {
	name, err := statusVar(s)
	if err != nil {
		return 0, err
	}
	buf, err := r.store.ReadFixedLen(name, efivar.RecordLen)
	if err != nil {
		return 0, err
	}
	status, err := StatusFromByte(efivar.Payload(buf))
	if err != nil {
		return 0, fmt.Errorf("slot %s: %w", s, err)
	}
	return status, nil
}

// SetStatus stores status for slot s. Bytes other than the payload are kept.
func (r *RootFsHealth) SetStatus(s slot.Slot, status RootFsStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(status))
	}
	name, err := statusVar(s)
	if err != nil {
		return err
	}
	buf, err := r.store.ReadFixedLen(name, efivar.RecordLen)
	if err != nil {
		return err
	}
	if err := r.store.Write(name, efivar.WithPayload(buf, byte(status))); err != nil {
		return err
	}
	log.Infof("rootfs status of slot %s set to %s", s, status)
	return nil
}

// MaxRetryCount returns the number of boot attempts the bootloader grants a slot.
func (r *RootFsHealth) MaxRetryCount() (uint8, error) {
	buf, err := r.store.ReadFixedLen(VarRetryCountMax, efivar.RecordLen)
	if err != nil {
		return 0, err
	}
	return efivar.Payload(buf), nil
}

// RetryCount returns the remaining boot attempts of slot s.
func (r *RootFsHealth) RetryCount(s slot.Slot) (uint8, error) {
	name, err := retryVar(s)
	if err != nil {
		return 0, err
	}
	buf, err := r.store.ReadFixedLen(name, efivar.RecordLen)
	if err != nil {
		return 0, err
	}
	count := efivar.Payload(buf)
	maxCount, err := r.MaxRetryCount()
	if err != nil {
		return 0, err
	}
	if count > maxCount {
		return 0, fmt.Errorf("%w: counter %d, max %d", ErrExceedingRetryCount, count, maxCount)
	}
	return count, nil
}

// ResetRetryCountToMax tells the bootloader to stop counting down on slot s.
func (r *RootFsHealth) ResetRetryCountToMax(s slot.Slot) error {
	name, err := retryVar(s)
	if err != nil {
		return err
	}
	maxCount, err := r.MaxRetryCount()
	if err != nil {
		return err
	}
	buf, err := r.store.ReadFixedLen(name, efivar.RecordLen)
	if err != nil {
		return err
	}
	if efivar.Payload(buf) == maxCount {
		log.Debugf("retry counter of slot %s already at max (%d)", s, maxCount)
		return nil
	}
	if err := r.store.Write(name, efivar.WithPayload(buf, maxCount)); err != nil {
		return err
	}
	log.Infof("retry counter of slot %s reset to %d", s, maxCount)
	return nil
}

// MarkSlotOK declares slot s healthy in the way the platform requires.
func (r *RootFsHealth) MarkSlotOK(s slot.Slot) error {
	return r.platform.MarkSlotOK(r, s)
}
