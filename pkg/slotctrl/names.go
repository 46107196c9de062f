package slotctrl

import "github.com/unbasical/slotupdate/pkg/slot"

// VendorGUID namespaces the boot chain and rootfs variables.
const VendorGUID = "781e084c-a330-417c-b678-38e696380cb9"

const (
	VarBootChainCurrent = "BootChainFwCurrent-" + VendorGUID
	VarBootChainNext    = "BootChainFwNext-" + VendorGUID
	VarBootChainStatus  = "BootChainFwStatus-" + VendorGUID
	VarRootfsStatusA    = "RootfsStatusSlotA-" + VendorGUID
	VarRootfsStatusB    = "RootfsStatusSlotB-" + VendorGUID
	VarRetryCountA      = "RootfsRetryCountA-" + VendorGUID
	VarRetryCountB      = "RootfsRetryCountB-" + VendorGUID
	VarRetryCountMax    = "RootfsRetryCountMax-" + VendorGUID
)

func statusVar(s slot.Slot) (string, error) {
	switch s {
	case slot.A:
		return VarRootfsStatusA, nil
	case slot.B:
		return VarRootfsStatusB, nil
	default:
		return "", slot.ErrInvalidSlot
	}
}

func retryVar(s slot.Slot) (string, error) {
	switch s {
	case slot.A:
		return VarRetryCountA, nil
	case slot.B:
		return VarRetryCountB, nil
	default:
		return "", slot.ErrInvalidSlot
	}
}
