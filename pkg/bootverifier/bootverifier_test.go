package bootverifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/mcu"
	"github.com/unbasical/slotupdate/pkg/slot"
	"github.com/unbasical/slotupdate/pkg/slotctrl"
)

type fakeClassifier struct {
	result mcu.Compatibility
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(context.Context) (mcu.Compatibility, error) {
	f.calls++
	return f.result, f.err
}

type fakeHealth struct {
	err   error
	calls int
}

func (f *fakeHealth) HealthCheck(context.Context) error {
	f.calls++
	return f.err
}

type fakeRebooter struct {
	err   error
	calls int
}

func (f *fakeRebooter) Reboot(context.Context) error {
	f.calls++
	return f.err
}

// bootedStore describes a device booted from slot B with the given status and retry counter, max 3.
func bootedStore(status slotctrl.RootFsStatus, retry byte) *efivar.MemStore {
	m := efivar.NewMemStore()
	m.Set(slotctrl.VarBootChainCurrent, efivar.NewRecord(byte(slot.B)))
	m.Set(slotctrl.VarRootfsStatusA, efivar.NewRecord(byte(slotctrl.Normal)))
	m.Set(slotctrl.VarRootfsStatusB, efivar.NewRecord(byte(status)))
	m.Set(slotctrl.VarRetryCountA, efivar.NewRecord(3))
	m.Set(slotctrl.VarRetryCountB, efivar.NewRecord(retry))
	m.Set(slotctrl.VarRetryCountMax, efivar.NewRecord(3))
	m.Set(slotctrl.VarBootChainStatus, efivar.NewRecord(1))
	return m
}

func TestVerifier_Run(t *testing.T) {
	tests := []struct {
		name         string
		status       slotctrl.RootFsStatus
		retry        byte
		force        bool
		platform     slotctrl.Platform
		mcu          *fakeClassifier
		healthErr    error
		rebootErr    error
		want         Outcome
		wantErr      error
		wantStatus   slotctrl.RootFsStatus
		wantRetry    byte
		wantMCUCalls int
		wantReboots  int
		wantHealth   int
	}{
		{
			name:       "normal slot only refreshes retry counter",
			status:     slotctrl.Normal,
			retry:      1,
			mcu:        &fakeClassifier{result: mcu.FatallyIncompatible},
			want:       OutcomeAlreadyNormal,
			wantStatus: slotctrl.Normal,
			wantRetry:  3,
		},
		{
			name:         "forced run on normal slot",
			status:       slotctrl.Normal,
			retry:        3,
			force:        true,
			mcu:          &fakeClassifier{result: mcu.Compatible},
			want:         OutcomeMarkedOK,
			wantStatus:   slotctrl.Normal,
			wantRetry:    3,
			wantMCUCalls: 1,
			wantHealth:   1,
		},
		{
			name:         "first boot after update",
			status:       slotctrl.UpdateInProcess,
			retry:        2,
			mcu:          &fakeClassifier{result: mcu.Compatible},
			want:         OutcomeMarkedOK,
			wantStatus:   slotctrl.Normal,
			wantRetry:    3,
			wantMCUCalls: 1,
			wantHealth:   1,
		},
		{
			name:         "recoverable mismatch reboots once",
			status:       slotctrl.UpdateInProcess,
			retry:        2,
			mcu:          &fakeClassifier{result: mcu.RecoverablyIncompatible},
			want:         OutcomeRecoveryReboot,
			wantStatus:   slotctrl.UpdateInProcess,
			wantRetry:    2,
			wantMCUCalls: 1,
			wantReboots:  1,
		},
		{
			name:         "recoverable mismatch is not rechecked on later attempts",
			status:       slotctrl.UpdateInProcess,
			retry:        1,
			mcu:          &fakeClassifier{result: mcu.RecoverablyIncompatible},
			want:         OutcomeMarkedOK,
			wantStatus:   slotctrl.Normal,
			wantRetry:    3,
			wantMCUCalls: 0,
			wantHealth:   1,
		},
		{
			name:         "fatal mismatch",
			status:       slotctrl.UpdateInProcess,
			retry:        3,
			mcu:          &fakeClassifier{result: mcu.FatallyIncompatible},
			want:         OutcomeFailed,
			wantErr:      ErrMCUIncompatible,
			wantStatus:   slotctrl.UpdateInProcess,
			wantRetry:    3,
			wantMCUCalls: 1,
		},
		{
			name:         "mcu query error",
			status:       slotctrl.UpdateInProcess,
			retry:        2,
			mcu:          &fakeClassifier{result: mcu.FatallyIncompatible, err: mcu.ErrNoVersionInfo},
			want:         OutcomeFailed,
			wantErr:      mcu.ErrNoVersionInfo,
			wantStatus:   slotctrl.UpdateInProcess,
			wantRetry:    2,
			wantMCUCalls: 1,
		},
		{
			name:         "reboot fails",
			status:       slotctrl.UpdateInProcess,
			retry:        2,
			mcu:          &fakeClassifier{result: mcu.RecoverablyIncompatible},
			rebootErr:    errors.New("no systemd"),
			want:         OutcomeFailed,
			wantErr:      errors.New("no systemd"),
			wantStatus:   slotctrl.UpdateInProcess,
			wantRetry:    2,
			wantMCUCalls: 1,
			wantReboots:  1,
		},
		{
			name:       "health check fails",
			status:     slotctrl.UpdateDone,
			retry:      2,
			healthErr:  errors.New("probe returned 503"),
			want:       OutcomeFailed,
			wantErr:    ErrUnhealthy,
			wantStatus: slotctrl.UpdateDone,
			wantRetry:  2,
			wantHealth: 1,
		},
		{
			name:       "dual platform",
			status:     slotctrl.UpdateInProcess,
			retry:      2,
			platform:   slotctrl.DualPlatform{},
			want:       OutcomeMarkedOK,
			wantStatus: slotctrl.Normal,
			wantRetry:  3,
			wantHealth: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := bootedStore(tt.status, tt.retry)
			ctrl := slotctrl.New(store, tt.platform)
			health := &fakeHealth{err: tt.healthErr}
			rebooter := &fakeRebooter{err: tt.rebootErr}
			options := []func(*Verifier){WithHealthChecker(health), WithRebooter(rebooter), WithForce(tt.force)}
			if tt.mcu != nil {
				options = append(options, WithMCUClassifier(tt.mcu))
			}

			got, err := New(ctrl, options...).Run(context.Background())
			switch {
			case tt.wantErr == nil:
				assert.NoError(t, err)
			case errors.Is(err, tt.wantErr):
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
			}
			assert.Equal(t, tt.want, got)

			status, err := ctrl.Status(slot.B)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
			retry, err := ctrl.RetryCount(slot.B)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRetry, retry)
			if tt.mcu != nil {
				assert.Equal(t, tt.wantMCUCalls, tt.mcu.calls)
			}
			assert.Equal(t, tt.wantReboots, rebooter.calls)
			assert.Equal(t, tt.wantHealth, health.calls)
		})
	}
}

func TestVerifier_NormalSlotWritesNoStatus(t *testing.T) {
	store := bootedStore(slotctrl.Normal, 0)
	got, err := New(slotctrl.New(store, nil)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyNormal, got)
	assert.Zero(t, store.Writes(slotctrl.VarRootfsStatusB))
	assert.Equal(t, 1, store.Writes(slotctrl.VarRetryCountB))
	assert.Equal(t, byte(3), efivar.Payload(store.Get(slotctrl.VarRetryCountB)))
}

func TestVerifier_DualPlatformRemovesFwStatus(t *testing.T) {
	store := bootedStore(slotctrl.UpdateInProcess, 2)
	got, err := New(slotctrl.New(store, slotctrl.DualPlatform{})).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeMarkedOK, got)
	_, err = store.ReadFixedLen(slotctrl.VarBootChainStatus, efivar.RecordLen)
	assert.ErrorIs(t, err, efivar.ErrNotFound)
}

func TestVerifier_CorruptStatus(t *testing.T) {
	store := bootedStore(slotctrl.Normal, 3)
	store.Set(slotctrl.VarRootfsStatusB, efivar.NewRecord(7))
	got, err := New(slotctrl.New(store, nil)).Run(context.Background())
	assert.ErrorIs(t, err, slotctrl.ErrInvalidStatus)
	assert.Equal(t, OutcomeFailed, got)
}

func TestCommandRebooter(t *testing.T) {
	assert.NoError(t, CommandRebooter{Command: []string{"true"}}.Reboot(context.Background()))
	assert.Error(t, CommandRebooter{Command: []string{"false"}}.Reboot(context.Background()))
}
