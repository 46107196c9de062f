//go:build linux

package efivar

import (
	"os"

	"golang.org/x/sys/unix"
)

// fsImmutableFl is FS_IMMUTABLE_FL from linux/fs.h.
const fsImmutableFl = 0x00000010

// InodeProtector toggles the immutable inode flag with FS_IOC_GETFLAGS/FS_IOC_SETFLAGS.
type InodeProtector struct{}

func (InodeProtector) Attributes(f *os.File) (uint32, error) {
	return unix.IoctlGetUint32(int(f.Fd()), unix.FS_IOC_GETFLAGS)
}

func (InodeProtector) SetAttributes(f *os.File, attrs uint32) error {
	v := int(attrs)
	return unix.IoctlSetPointerInt(int(f.Fd()), unix.FS_IOC_SETFLAGS, v)
}

func (InodeProtector) Unprotected(attrs uint32) uint32 {
	return attrs &^ fsImmutableFl
}

func defaultProtector() Protector {
	return InodeProtector{}
}
