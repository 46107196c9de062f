package efivar

import "os"

// Protector reads and changes the inode flags that guard a variable against writes.
type Protector interface {
	Attributes(f *os.File) (uint32, error)
	SetAttributes(f *os.File, attrs uint32) error
	// Unprotected strips the write protection from attrs.
	Unprotected(attrs uint32) uint32
}

// NopProtector is used for stores that are not backed by efivarfs.
type NopProtector struct{}

func (NopProtector) Attributes(*os.File) (uint32, error) { return 0, nil }

func (NopProtector) SetAttributes(*os.File, uint32) error { return nil }

func (NopProtector) Unprotected(attrs uint32) uint32 { return attrs }
