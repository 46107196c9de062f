package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/internal/pkg/utils/writerutils"
	"github.com/unbasical/slotupdate/pkg/client/updater/manifest"
	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/slot"
)

const (
	// CapsulePath is where the firmware looks for a staged capsule inside the ESP.
	CapsulePath = "EFI/UpdateCapsule/TEGRA.Cap"
	// VarOsIndications is the global variable used to request capsule processing.
	VarOsIndications = "OsIndications-8be4df61-93ca-11d2-aa0d-00e098032b8c"
	// OsIndicationsLen is the attribute header plus a 64 bit bitmask.
	OsIndicationsLen = 12
	// FileCapsuleDeliverySupported asks the firmware to process capsules from the ESP on next reset.
	FileCapsuleDeliverySupported = 0x04
)

// Capsule stages a UEFI capsule on the EFI system partition. The firmware applies it
// to the other boot chain on its own, so the target slot is ignored.
type Capsule struct {
	finder    ESPFinder
	mounter   Mounter
	store     efivar.Store
	mountRoot string
	path      string
}

func WithESPFinder(f ESPFinder) func(*Capsule) {
	return func(c *Capsule) {
		c.finder = f
	}
}

func WithMounter(m Mounter) func(*Capsule) {
	return func(c *Capsule) {
		c.mounter = m
	}
}

// WithMountRoot sets the directory the temporary mount point is created in.
func WithMountRoot(dir string) func(*Capsule) {
	return func(c *Capsule) {
		c.mountRoot = dir
	}
}

// WithCapsulePath overrides the path of the capsule file relative to the ESP root.
func WithCapsulePath(p string) func(*Capsule) {
	return func(c *Capsule) {
		if p != "" {
			c.path = p
		}
	}
}

func NewCapsule(store efivar.Store, options ...func(*Capsule)) *Capsule {
	c := &Capsule{
		finder:  NewGPTScanner(nil),
		mounter: SysMounter{},
		store:   store,
		path:    CapsulePath,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Capsule) Install(ctx context.Context, comp manifest.Component, _ slot.Slot, src io.ReadSeeker) error {
	esp, err := c.finder.FindESP(ctx)
	if err != nil {
		return err
	}
	if err := c.stage(esp, src); err != nil {
		return err
	}
	if err := RequestCapsuleUpdate(c.store); err != nil {
		return fmt.Errorf("failed to request capsule update: %w", err)
	}
	log.WithField("component", comp.Name).Info("capsule staged, firmware will apply it on next reset")
	return nil
}

// stage copies the payload into the ESP. The ESP is unmounted on every return path.
func (c *Capsule) stage(esp string, src io.ReadSeeker) (err error) {
	mountpoint, err := os.MkdirTemp(c.mountRoot, "esp-")
	if err != nil {
		return fmt.Errorf("failed to create mount point: %w", err)
	}
	defer func() {
		if rerr := os.Remove(mountpoint); rerr != nil {
			log.WithError(rerr).Warnf("failed to remove mount point %s", mountpoint)
		}
	}()
	if err := c.mounter.Mount(esp, mountpoint); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, c.mounter.Unmount(mountpoint))
	}()

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	dst := filepath.Join(mountpoint, c.path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create capsule directory: %w", err)
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create capsule file: %w", err)
	}
	w := writerutils.NewSafeFileWriter(f)
	n, err := io.Copy(w, src)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write capsule file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to flush capsule file: %w", err)
	}
	log.Debugf("wrote %d bytes to %s", n, dst)
	return nil
}

// RequestCapsuleUpdate sets the capsule delivery bit in OsIndications and keeps all other bits.
func RequestCapsuleUpdate(store efivar.Store) error {
	buf, err := store.ReadFixedLen(VarOsIndications, OsIndicationsLen)
	if errors.Is(err, efivar.ErrNotFound) {
		rec := make([]byte, OsIndicationsLen)
		rec[0] = efivar.DefaultAttributes
		rec[efivar.PayloadOffset] = FileCapsuleDeliverySupported
		return store.CreateAndWrite(VarOsIndications, rec)
	}
	if err != nil {
		return err
	}
	if buf[efivar.PayloadOffset]&FileCapsuleDeliverySupported != 0 {
		log.Debug("capsule update already requested")
		return nil
	}
	return store.Write(VarOsIndications, efivar.WithPayload(buf, buf[efivar.PayloadOffset]|FileCapsuleDeliverySupported))
}
