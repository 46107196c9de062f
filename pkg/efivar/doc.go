// Package efivar stores fixed-length records in UEFI variables.
//
// Every variable exposed by efivarfs starts with four attribute bytes followed by the
// variable payload. The records managed here are eight bytes long and keep their value
// in byte 4; the remaining bytes are carried over untouched on every write.
//
// efivarfs marks most variables immutable. Write clears the flag, writes, flushes and
// restores the flag, and reports which of those steps failed through *WriteError.
package efivar
