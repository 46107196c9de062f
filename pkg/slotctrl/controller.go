package slotctrl

import (
	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/slot"
)

// Controller bundles slot selection and rootfs health on one store.
type Controller struct {
	*SlotState
	*RootFsHealth
}

func New(store efivar.Store, platform Platform) *Controller {
	return &Controller{
		SlotState:    NewSlotState(store),
		RootFsHealth: NewRootFsHealth(store, platform),
	}
}

// Snapshot is a read-only view of all slot related records.
type Snapshot struct {
	Current       string            `json:"current"`
	Next          string            `json:"next"`
	Platform      string            `json:"platform"`
	Status        map[string]string `json:"status"`
	RetryCount    map[string]uint8  `json:"retryCount"`
	MaxRetryCount uint8             `json:"maxRetryCount"`
}

// Snapshot collects the state of both slots.
func (c *Controller) Snapshot() (*Snapshot, error) {
	cur, err := c.CurrentSlot()
	if err != nil {
		return nil, err
	}
	next, err := c.NextSlot()
	if err != nil {
		return nil, err
	}
	maxCount, err := c.MaxRetryCount()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Current:       cur.String(),
		Next:          next.String(),
		Platform:      c.Platform().Name(),
		Status:        make(map[string]string, 2),
		RetryCount:    make(map[string]uint8, 2),
		MaxRetryCount: maxCount,
	}
	for _, s := range []slot.Slot{slot.A, slot.B} {
		status, err := c.Status(s)
		if err != nil {
			return nil, err
		}
		count, err := c.RetryCount(s)
		if err != nil {
			return nil, err
		}
		snap.Status[s.String()] = status.String()
		snap.RetryCount[s.String()] = count
	}
	return snap, nil
}
