package slotctrl

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/slot"
)

// SlotState reads and selects boot slots.
type SlotState struct {
	store efivar.Store
}

func NewSlotState(store efivar.Store) *SlotState {
	return &SlotState{store: store}
}

func (s *SlotState) readSlot(name string) (slot.Slot, error) {
	buf, err := s.store.ReadFixedLen(name, efivar.RecordLen)
	if err != nil {
		return 0, err
	}
	v, err := slot.FromByte(efivar.Payload(buf))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// CurrentSlot returns the slot the firmware booted from.
func (s *SlotState) CurrentSlot() (slot.Slot, error) {
	return s.readSlot(VarBootChainCurrent)
}

// InactiveSlot returns the slot that is not currently booted.
func (s *SlotState) InactiveSlot() (slot.Slot, error) {
	cur, err := s.CurrentSlot()
	if err != nil {
		return 0, err
	}
	return cur.Opposite(), nil
}

// NextSlot returns the slot selected for the next boot. Freshly provisioned devices
// have no such record yet, in that case the current slot is returned.
func (s *SlotState) NextSlot() (slot.Slot, error) {
	next, err := s.readSlot(VarBootChainNext)
	if errors.Is(err, efivar.ErrNotFound) {
		log.Debug("next boot slot is not set, falling back to current slot")
		return s.CurrentSlot()
	}
	return next, err
}

// SetNextSlot selects the slot for the next boot, creating the record if needed.
func (s *SlotState) SetNextSlot(next slot.Slot) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %d", slot.ErrInvalidSlot, uint8(next))
	}
	buf, err := s.store.ReadFixedLen(VarBootChainNext, efivar.RecordLen)
	switch {
	case errors.Is(err, efivar.ErrNotFound):
		if err := s.store.CreateAndWrite(VarBootChainNext, efivar.NewRecord(byte(next))); err != nil {
			return fmt.Errorf("failed to create next boot slot record: %w", err)
		}
	case err != nil:
		return err
	default:
		if err := s.store.Write(VarBootChainNext, efivar.WithPayload(buf, byte(next))); err != nil {
			return fmt.Errorf("failed to set next boot slot: %w", err)
		}
	}
	log.Infof("next boot slot set to %s", next)
	return nil
}
