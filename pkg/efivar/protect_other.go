//go:build !linux

package efivar

func defaultProtector() Protector {
	return NopProtector{}
}
