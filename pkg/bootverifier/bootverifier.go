// Package bootverifier decides early during boot whether the running slot is healthy.
package bootverifier

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/internal/pkg/metrics"
	"github.com/unbasical/slotupdate/pkg/client/updater/healthchecker"
	"github.com/unbasical/slotupdate/pkg/client/updater/versions"
	"github.com/unbasical/slotupdate/pkg/mcu"
	"github.com/unbasical/slotupdate/pkg/slot"
	"github.com/unbasical/slotupdate/pkg/slotctrl"
)

var (
	ErrMCUIncompatible = errors.New("microcontroller firmware is incompatible")
	ErrUnhealthy       = errors.New("system health checks failed")
)

// Outcome describes how a verification run ended.
type Outcome string

const (
	OutcomeAlreadyNormal  Outcome = "already-normal"
	OutcomeMarkedOK       Outcome = "marked-ok"
	OutcomeRecoveryReboot Outcome = "recovery-reboot"
	OutcomeFailed         Outcome = "failed"
)

type Verifier struct {
	slots    *slotctrl.Controller
	mcu      mcu.Classifier
	health   healthchecker.HealthChecker
	rebooter Rebooter
	versions *versions.Store
	force    bool
}

func New(slots *slotctrl.Controller, options ...func(*Verifier)) *Verifier {
	v := &Verifier{
		slots:    slots,
		rebooter: CommandRebooter{},
	}
	for _, option := range options {
		option(v)
	}
	return v
}

// WithMCUClassifier enables the microcontroller compatibility check on the first boot of a slot.
func WithMCUClassifier(c mcu.Classifier) func(*Verifier) {
	return func(v *Verifier) {
		v.mcu = c
	}
}

func WithHealthChecker(h healthchecker.HealthChecker) func(*Verifier) {
	return func(v *Verifier) {
		v.health = h
	}
}

func WithRebooter(r Rebooter) func(*Verifier) {
	return func(v *Verifier) {
		v.rebooter = r
	}
}

// WithVersions logs the versions of the booted slot on every run.
func WithVersions(s *versions.Store) func(*Verifier) {
	return func(v *Verifier) {
		v.versions = s
	}
}

// WithForce runs the full verification even if the slot is already Normal.
func WithForce(force bool) func(*Verifier) {
	return func(v *Verifier) {
		v.force = force
	}
}

// Run verifies the booted slot once.
// A slot already marked Normal only gets its retry counter refreshed. Otherwise the
// microcontrollers are checked on the first attempt, then the health checks run and
// the slot is marked OK. A recoverable microcontroller mismatch reboots once and
// returns without marking the slot.
func (v *Verifier) Run(ctx context.Context) (outcome Outcome, err error) {
	defer func() {
		if err != nil {
			outcome = OutcomeFailed
		}
		metrics.BootVerifications.WithLabelValues(string(outcome)).Inc()
	}()
	current, err := v.slots.CurrentSlot()
	if err != nil {
		return OutcomeFailed, err
	}
	logger := log.WithField("slot", current.String())
	if v.versions != nil {
		v.versions.LogVersions(current)
	}

	status, err := v.slots.Status(current)
	if err != nil {
		return OutcomeFailed, err
	}
	if status == slotctrl.Normal && !v.force {
		logger.Info("slot is already marked normal, refreshing retry counter")
		if err := v.slots.ResetRetryCountToMax(current); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeAlreadyNormal, nil
	}
	logger.Infof("verifying slot with status %s", status)

	if v.mcu != nil {
		first, err := v.firstAttempt(current)
		if err != nil {
			return OutcomeFailed, err
		}
		if first {
			rebooted, err := v.checkMCU(ctx)
			if err != nil {
				return OutcomeFailed, err
			}
			if rebooted {
				return OutcomeRecoveryReboot, nil
			}
		} else {
			logger.Debug("not the first boot attempt, skipping microcontroller check")
		}
	}

	if v.health != nil {
		if err := v.health.HealthCheck(ctx); err != nil {
			return OutcomeFailed, fmt.Errorf("%w: %w", ErrUnhealthy, err)
		}
	}

	logger.Info("marking slot as ok")
	if err := v.slots.MarkSlotOK(current); err != nil {
		return OutcomeFailed, err
	}
	if err := v.slots.ResetRetryCountToMax(current); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeMarkedOK, nil
}

// firstAttempt reports whether the bootloader counted down at most once since the counter was reset.
func (v *Verifier) firstAttempt(s slot.Slot) (bool, error) {
	count, err := v.slots.RetryCount(s)
	if err != nil {
		return false, err
	}
	maxCount, err := v.slots.MaxRetryCount()
	if err != nil {
		return false, err
	}
	return int(count) >= int(maxCount)-1, nil
}

func (v *Verifier) checkMCU(ctx context.Context) (rebooted bool, err error) {
	compat, err := v.mcu.Classify(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrMCUIncompatible, err)
	}
	switch compat {
	case mcu.Compatible:
		log.Info("microcontroller versions are compatible")
		return false, nil
	case mcu.RecoverablyIncompatible:
		log.Warn("microcontroller runs an outdated image, rebooting to activate the expected one")
		if err := v.rebooter.Reboot(ctx); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrMCUIncompatible, compat)
	}
}
