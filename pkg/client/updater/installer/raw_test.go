package installer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbasical/slotupdate/pkg/client/updater/manifest"
	"github.com/unbasical/slotupdate/pkg/slot"
)

func rawComponent(dev string, offset, size int64, r manifest.Redundancy) manifest.Component {
	return manifest.Component{
		Name: "kernel",
		Target: manifest.Target{
			Type:       manifest.TargetRaw,
			Device:     dev,
			Offset:     offset,
			Size:       size,
			Redundancy: r,
		},
	}
}

// fakeDisk creates a zero filled file standing in for a block device.
func fakeDisk(t *testing.T, size int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "disk")
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	return p
}

func TestOffset(t *testing.T) {
	tests := []struct {
		name       string
		redundancy manifest.Redundancy
		target     slot.Slot
		want       int64
	}{
		{name: "redundant a", redundancy: manifest.Redundant, target: slot.A, want: 100},
		{name: "redundant b", redundancy: manifest.Redundant, target: slot.B, want: 150},
		{name: "single a", redundancy: manifest.Single, target: slot.A, want: 100},
		{name: "single b", redundancy: manifest.Single, target: slot.B, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := rawComponent("/dev/null", 100, 50, tt.redundancy)
			assert.Equal(t, tt.want, Offset(c, tt.target))
		})
	}
}

func TestRaw_Install(t *testing.T) {
	payload := []byte("0123456789")
	tests := []struct {
		name       string
		redundancy manifest.Redundancy
		target     slot.Slot
		wantAt     int
	}{
		{name: "redundant into a", redundancy: manifest.Redundant, target: slot.A, wantAt: 16},
		{name: "redundant into b", redundancy: manifest.Redundant, target: slot.B, wantAt: 48},
		{name: "single into a", redundancy: manifest.Single, target: slot.A, wantAt: 16},
		{name: "single into b", redundancy: manifest.Single, target: slot.B, wantAt: 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disk := fakeDisk(t, 128)
			c := rawComponent(disk, 16, 32, tt.redundancy)

			err := NewRaw().Install(context.Background(), c, tt.target, bytes.NewReader(payload))
			require.NoError(t, err)

			got, err := os.ReadFile(disk)
			require.NoError(t, err)
			want := make([]byte, 128)
			copy(want[tt.wantAt:], payload)
			assert.Equal(t, want, got)
		})
	}
}

func TestRaw_DeviceTooSmall(t *testing.T) {
	disk := fakeDisk(t, 64)
	before, err := os.ReadFile(disk)
	require.NoError(t, err)

	// slot b of a redundant component starts at 50, 30 bytes do not fit into 64
	c := rawComponent(disk, 20, 30, manifest.Redundant)
	err = NewRaw().Install(context.Background(), c, slot.B, bytes.NewReader(make([]byte, 30)))
	assert.ErrorIs(t, err, ErrDeviceTooSmall)

	after, err := os.ReadFile(disk)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, after, 64)
}

func TestRaw_ExactFit(t *testing.T) {
	disk := fakeDisk(t, 40)
	c := rawComponent(disk, 20, 20, manifest.Redundant)
	payload := bytes.Repeat([]byte{0xab}, 20)
	require.NoError(t, NewRaw().Install(context.Background(), c, slot.A, bytes.NewReader(payload)))
	got, err := os.ReadFile(disk)
	require.NoError(t, err)
	assert.Equal(t, payload, got[20:])
}

func TestRaw_MissingDevice(t *testing.T) {
	c := rawComponent(filepath.Join(t.TempDir(), "nope"), 0, 0, manifest.Single)
	err := NewRaw().Install(context.Background(), c, slot.A, bytes.NewReader([]byte("x")))
	assert.Error(t, err)
}

func TestRaw_PayloadLargerThanArea(t *testing.T) {
	tests := []struct {
		name       string
		redundancy manifest.Redundancy
		target     slot.Slot
	}{
		{name: "redundant into a", redundancy: manifest.Redundant, target: slot.A},
		{name: "redundant into b", redundancy: manifest.Redundant, target: slot.B},
		{name: "single", redundancy: manifest.Single, target: slot.A},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disk := fakeDisk(t, 24)
			before := append(bytes.Repeat([]byte{0x00}, 8), bytes.Repeat([]byte{0xbb}, 16)...)
			require.NoError(t, os.WriteFile(disk, before, 0o644))

			c := rawComponent(disk, 0, 8, tt.redundancy)
			err := NewRaw().Install(context.Background(), c, tt.target, bytes.NewReader(bytes.Repeat([]byte{0xaa}, 16)))
			assert.ErrorIs(t, err, ErrPayloadTooLarge)

			after, err := os.ReadFile(disk)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}
