//go:build linux

package installer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SysMounter mounts with mount(2) and unmounts with umount2(2).
type SysMounter struct{}

func (SysMounter) Mount(device, target string) error {
	if err := unix.Mount(device, target, "vfat", unix.MS_NOEXEC|unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
		return fmt.Errorf("failed to mount %s on %s: %w", device, target, err)
	}
	return nil
}

func (SysMounter) Unmount(target string) error {
	if err := unix.Unmount(target, unix.UMOUNT_NOFOLLOW); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", target, err)
	}
	return nil
}
