package slotctrl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/slot"
)

// seededStore returns a store for a device booted from current with both slots Normal.
func seededStore(current slot.Slot) *efivar.MemStore {
	m := efivar.NewMemStore()
	m.Set(VarBootChainCurrent, efivar.NewRecord(byte(current)))
	m.Set(VarRootfsStatusA, efivar.NewRecord(byte(Normal)))
	m.Set(VarRootfsStatusB, efivar.NewRecord(byte(Normal)))
	m.Set(VarRetryCountA, efivar.NewRecord(3))
	m.Set(VarRetryCountB, efivar.NewRecord(3))
	m.Set(VarRetryCountMax, efivar.NewRecord(3))
	return m
}

func TestSlotState_NextSlotFallsBackToCurrent(t *testing.T) {
	m := seededStore(slot.B)
	s := NewSlotState(m)

	next, err := s.NextSlot()
	require.NoError(t, err)
	assert.Equal(t, slot.B, next)

	inactive, err := s.InactiveSlot()
	require.NoError(t, err)
	assert.Equal(t, slot.A, inactive)
}

func TestSlotState_SetNextSlot(t *testing.T) {
	m := seededStore(slot.A)
	s := NewSlotState(m)

	require.NoError(t, s.SetNextSlot(slot.B))
	assert.Equal(t, []byte{7, 0, 0, 0, 1, 0, 0, 0}, m.Get(VarBootChainNext))

	// existing record keeps its non-payload bytes
	m.Set(VarBootChainNext, []byte{6, 1, 2, 3, 1, 4, 5, 6})
	require.NoError(t, s.SetNextSlot(slot.A))
	assert.Equal(t, []byte{6, 1, 2, 3, 0, 4, 5, 6}, m.Get(VarBootChainNext))

	next, err := s.NextSlot()
	require.NoError(t, err)
	assert.Equal(t, slot.A, next)

	assert.ErrorIs(t, s.SetNextSlot(slot.Slot(2)), slot.ErrInvalidSlot)
}

func TestSlotState_CorruptRecords(t *testing.T) {
	m := seededStore(slot.A)
	m.Set(VarBootChainCurrent, efivar.NewRecord(5))
	_, err := NewSlotState(m).CurrentSlot()
	assert.ErrorIs(t, err, slot.ErrInvalidSlot)

	m.Set(VarBootChainCurrent, []byte{7, 0, 0, 0, 0})
	_, err = NewSlotState(m).CurrentSlot()
	var lenErr *efivar.LengthMismatchError
	assert.ErrorAs(t, err, &lenErr)
}

func TestRootFsHealth_StatusRoundTrip(t *testing.T) {
	for _, s := range []slot.Slot{slot.A, slot.B} {
		for _, status := range []RootFsStatus{Normal, UpdateInProcess, UpdateDone, Unbootable} {
			t.Run(s.String()+"/"+status.String(), func(t *testing.T) {
				m := seededStore(slot.A)
				name, err := statusVar(s)
				require.NoError(t, err)
				m.Set(name, []byte{7, 0xde, 0xad, 0, 0, 0xbe, 0xef, 1})
				r := NewRootFsHealth(m, nil)

				require.NoError(t, r.SetStatus(s, status))
				got, err := r.Status(s)
				require.NoError(t, err)
				assert.Equal(t, status, got)
				assert.Equal(t, []byte{7, 0xde, 0xad, 0, byte(status), 0xbe, 0xef, 1}, m.Get(name))
			})
		}
	}
}

func TestRootFsHealth_RejectsUnknownStatus(t *testing.T) {
	m := seededStore(slot.A)
	r := NewRootFsHealth(m, nil)

	m.Set(VarRootfsStatusA, efivar.NewRecord(4))
	_, err := r.Status(slot.A)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	before := m.Get(VarRootfsStatusB)
	assert.ErrorIs(t, r.SetStatus(slot.B, RootFsStatus(4)), ErrInvalidStatus)
	assert.Equal(t, before, m.Get(VarRootfsStatusB))
}

func TestRootFsHealth_RetryCounter(t *testing.T) {
	m := seededStore(slot.A)
	m.Set(VarRetryCountB, efivar.NewRecord(1))
	r := NewRootFsHealth(m, nil)

	count, err := r.RetryCount(slot.B)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), count)

	require.NoError(t, r.ResetRetryCountToMax(slot.B))
	count, err = r.RetryCount(slot.B)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), count)

	writes := m.Writes(VarRetryCountB)
	require.NoError(t, r.ResetRetryCountToMax(slot.B))
	assert.Equal(t, writes, m.Writes(VarRetryCountB), "counter at max must not be rewritten")

	m.Set(VarRetryCountA, efivar.NewRecord(7))
	_, err = r.RetryCount(slot.A)
	assert.ErrorIs(t, err, ErrExceedingRetryCount)
}

func TestMarkSlotOK(t *testing.T) {
	tests := []struct {
		name          string
		platform      Platform
		status        RootFsStatus
		retry         byte
		withFwStatus  bool
		wantFwRemoved bool
	}{
		{name: "simple from update-in-process", platform: SimplePlatform{}, status: UpdateInProcess, retry: 0},
		{name: "simple from unbootable", platform: SimplePlatform{}, status: Unbootable, retry: 2},
		{name: "simple already normal", platform: SimplePlatform{}, status: Normal, retry: 3},
		{name: "dual removes fw status", platform: DualPlatform{}, status: UpdateDone, retry: 1, withFwStatus: true, wantFwRemoved: true},
		{name: "dual without fw status", platform: DualPlatform{}, status: UpdateInProcess, retry: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := seededStore(slot.B)
			m.Set(VarRootfsStatusB, efivar.NewRecord(byte(tt.status)))
			m.Set(VarRetryCountB, efivar.NewRecord(tt.retry))
			if tt.withFwStatus {
				m.Set(VarBootChainStatus, efivar.NewRecord(1))
			}
			c := New(m, tt.platform)

			require.NoError(t, c.MarkSlotOK(slot.B))

			status, err := c.Status(slot.B)
			require.NoError(t, err)
			assert.Equal(t, Normal, status)
			count, err := c.RetryCount(slot.B)
			require.NoError(t, err)
			assert.Equal(t, uint8(3), count)
			if tt.wantFwRemoved {
				assert.Nil(t, m.Get(VarBootChainStatus))
			}
		})
	}
}

func TestSimplePlatformKeepsFwStatus(t *testing.T) {
	m := seededStore(slot.A)
	m.Set(VarBootChainStatus, efivar.NewRecord(1))
	require.NoError(t, New(m, SimplePlatform{}).MarkSlotOK(slot.A))
	assert.NotNil(t, m.Get(VarBootChainStatus))
}

func TestParseStatus(t *testing.T) {
	tests := map[string]RootFsStatus{
		"normal":            Normal,
		"UPDATE_IN_PROCESS": UpdateInProcess,
		"updatedone":        UpdateDone,
		"3":                 Unbootable,
	}
	for in, want := range tests {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"4", "healthy", ""} {
		_, err := ParseStatus(in)
		assert.ErrorIs(t, err, ErrInvalidStatus, in)
	}
}

func TestPlatformByName(t *testing.T) {
	p, err := PlatformByName("dual")
	require.NoError(t, err)
	assert.Equal(t, "dual", p.Name())
	p, err = PlatformByName("")
	require.NoError(t, err)
	assert.Equal(t, "simple", p.Name())
	_, err = PlatformByName("triple")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestController_Snapshot(t *testing.T) {
	m := seededStore(slot.A)
	m.Set(VarRootfsStatusB, efivar.NewRecord(byte(Unbootable)))
	snap, err := New(m, DualPlatform{}).Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "a", snap.Current)
	assert.Equal(t, "a", snap.Next)
	assert.Equal(t, "dual", snap.Platform)
	assert.Equal(t, "unbootable", snap.Status["b"])
	assert.Equal(t, uint8(3), snap.MaxRetryCount)
}
