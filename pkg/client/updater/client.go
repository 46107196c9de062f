// Package updater installs an update manifest into the inactive slot and arms it for the next boot.
package updater

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/internal/pkg/metrics"
	"github.com/unbasical/slotupdate/pkg/client/updater/installer"
	"github.com/unbasical/slotupdate/pkg/client/updater/manifest"
	"github.com/unbasical/slotupdate/pkg/client/updater/source"
	"github.com/unbasical/slotupdate/pkg/client/updater/validator"
	"github.com/unbasical/slotupdate/pkg/client/updater/verifier"
	"github.com/unbasical/slotupdate/pkg/client/updater/versions"
	"github.com/unbasical/slotupdate/pkg/slot"
	"github.com/unbasical/slotupdate/pkg/slotctrl"
)

// Client runs update attempts. One Client runs one attempt at a time.
type Client struct {
	opts       clientOpts
	slots      *slotctrl.Controller
	src        source.Source
	installer  installer.ComponentInstaller
	verifier   verifier.ContentVerifier
	versions   *versions.Store
	validators []validator.ManifestValidator
	stage      Stage
}

// Stage returns the last stage the most recent attempt reached.
func (c *Client) Stage() Stage {
	return c.stage
}

// Slots exposes the slot controller the client operates on.
func (c *Client) Slots() *slotctrl.Controller {
	return c.slots
}

func (c *Client) setStage(s Stage) {
	c.stage = s
	metrics.UpdateStage.Set(float64(s))
	log.WithField("stage", s.String()).Info("update stage reached")
}

// Update installs every component of m into the inactive slot and selects that slot for the next boot.
// Components installed before a failure are left in place; rerunning the attempt is safe.
// The active slot is never written to.
func (c *Client) Update(ctx context.Context, m *manifest.Manifest) error {
	c.setStage(StageIdle)
	if err := m.Validate(); err != nil {
		return NewUpdaterError(ErrInvalidManifest, err)
	}
	active, err := c.slots.CurrentSlot()
	if err != nil {
		return NewUpdaterError(ErrSlotStateFailed, err)
	}
	target := active.Opposite()
	log.Debugf("active slot: %s, target slot: %s", active, target)

	if _, err := manifest.CompareAndPersist(m, c.opts.WorkspaceDirectory); err != nil {
		return NewUpdaterError(ErrManifestReconcile, err)
	}
	c.setStage(StageManifestReconciled)

	if err := c.check(m, active); err != nil {
		return NewUpdaterError(ErrFailedChecks, err)
	}
	c.setStage(StageComponentsVerified)

	components := lo.Filter(m.Components, func(comp manifest.Component, _ int) bool {
		return c.selected(comp)
	})
	for _, comp := range components {
		if err := ctx.Err(); err != nil {
			return NewUpdaterError(ErrFailedToApplyUpdate, err)
		}
		if err := c.installComponent(ctx, comp, target); err != nil {
			return err
		}
	}
	if c.opts.Release != "" && c.versions != nil {
		if err := c.versions.Update(func(v *versions.Versions) { v.SetRelease(target, c.opts.Release) }); err != nil {
			return NewUpdaterError(ErrVersionsFailed, err)
		}
	}
	c.setStage(StageComponentsInstalled)

	if err := c.slots.SetStatus(target, slotctrl.UpdateInProcess); err != nil {
		return NewUpdaterError(ErrSlotStateFailed, fmt.Errorf("failed to set rootfs status of slot %s: %w", target, err))
	}
	if err := c.slots.ResetRetryCountToMax(target); err != nil {
		return NewUpdaterError(ErrSlotStateFailed, fmt.Errorf("failed to reset retry counter of slot %s: %w", target, err))
	}
	c.setStage(StageSlotMarkedPending)

	if err := c.slots.SetNextSlot(target); err != nil {
		return NewUpdaterError(ErrSlotStateFailed, fmt.Errorf("failed to set next boot slot to %s: %w", target, err))
	}
	c.setStage(StageNextBootSlotSet)

	log.Infof("update installed into slot %s, it is used on next boot", target)
	c.setStage(StageDone)
	return nil
}

func (c *Client) selected(comp manifest.Component) bool {
	recoveryPhase := comp.InstallationPhase == manifest.PhaseRecovery
	if recoveryPhase != c.opts.Recovery {
		log.WithField("component", comp.Name).Infof("skipping component of installation phase %q", comp.InstallationPhase)
		return false
	}
	return true
}

// check runs the manifest level validators.
func (c *Client) check(m *manifest.Manifest, active slot.Slot) error {
	checks := validator.All(slices.Clone(c.validators))
	if c.opts.SizeLimit > 0 {
		checks = append(checks, validator.SizeLimitedValidator{Limit: c.opts.SizeLimit})
	}
	switch {
	case c.opts.SkipVersionAsserts:
		log.Info("skipping version asserts")
	case c.versions != nil:
		v, err := c.versions.Load()
		if err != nil {
			return fmt.Errorf("failed to load versions: %w", err)
		}
		checks = append(checks, validator.VersionAssertValidator{Versions: &v, Active: active})
	}
	return checks.Validate(m)
}

func (c *Client) installComponent(ctx context.Context, comp manifest.Component, target slot.Slot) error {
	logger := log.WithField("component", comp.Name)
	expected, err := comp.Digest()
	if err != nil {
		return NewUpdaterError(ErrFailedChecks, err)
	}
	content, err := c.src.Open(ctx, comp.Name)
	if err != nil {
		return NewUpdaterError(ErrFetchFailed, fmt.Errorf("component %q: %w", comp.Name, err))
	}
	defer func() {
		if err := content.Close(); err != nil {
			logger.WithError(err).Warn("failed to close component content")
		}
	}()
	if content.Declared != "" && content.Declared != expected {
		return NewUpdaterError(ErrFailedChecks, fmt.Errorf("component %q: source declares %s, manifest expects %s: %w",
			comp.Name, content.Declared, expected, verifier.ErrDigestMismatch))
	}
	if err := c.verifier.Verify(content, expected); err != nil {
		return NewUpdaterError(ErrFailedChecks, fmt.Errorf("component %q: %w", comp.Name, err))
	}
	logger.Debugf("content matches %s", expected)

	if err := c.installer.Install(ctx, comp, target, content); err != nil {
		return NewUpdaterError(ErrFailedToApplyUpdate, fmt.Errorf("component %q: %w", comp.Name, err))
	}
	if c.versions == nil {
		return nil
	}
	err = c.versions.Update(func(v *versions.Versions) {
		v.SetComponent(target, comp.Name, comp.Version, comp.Redundant())
	})
	if err != nil {
		return NewUpdaterError(ErrVersionsFailed, err)
	}
	return nil
}
