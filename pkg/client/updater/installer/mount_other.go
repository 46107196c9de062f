//go:build !linux

package installer

import "errors"

var errMountUnsupported = errors.New("mounting is only supported on linux")

type SysMounter struct{}

func (SysMounter) Mount(string, string) error { return errMountUnsupported }

func (SysMounter) Unmount(string) error { return errMountUnsupported }
