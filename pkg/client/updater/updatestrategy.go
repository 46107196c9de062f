package updater

import "fmt"

// Stage is the last step an update attempt completed. Stages only move forward.
type Stage int

const (
	StageIdle Stage = iota
	StageManifestReconciled
	StageComponentsVerified
	StageComponentsInstalled
	StageSlotMarkedPending
	StageNextBootSlotSet
	StageDone
)

var stageNames = [...]string{
	StageIdle:                "idle",
	StageManifestReconciled:  "manifest-reconciled",
	StageComponentsVerified:  "components-verified",
	StageComponentsInstalled: "components-installed",
	StageSlotMarkedPending:   "slot-marked-pending",
	StageNextBootSlotSet:     "next-boot-slot-set",
	StageDone:                "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}
