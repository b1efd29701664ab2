package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeviceUpgradeState(t *testing.T) {
	t.Run("starts idle", func(t *testing.T) {
		state, err := NewDeviceUpgradeState("dev-1")

		require.NoError(t, err)
		assert.Equal(t, "dev-1", state.DeviceHid)
		assert.Equal(t, StateIdle, state.State)
		assert.False(t, state.Canceled)
		assert.WithinDuration(t, time.Now().UTC(), state.UpdatedAt, 5*time.Second)
	})

	t.Run("rejects empty device hid", func(t *testing.T) {
		_, err := NewDeviceUpgradeState("  ")
		assert.ErrorIs(t, err, ErrEmptyDeviceHid)
	})
}

func TestParseUpgradeState(t *testing.T) {
	state, err := ParseUpgradeState(" Downloading ")
	require.NoError(t, err)
	assert.Equal(t, StateDownloading, state)

	_, err = ParseUpgradeState("flashing")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to UpgradeState
		want     bool
	}{
		{StateIdle, StateScheduled, true},
		{StateScheduled, StateDownloading, true},
		{StateDownloading, StatePreparing, true},
		{StatePreparing, StateUpgrading, true},
		{StateUpgrading, StateSuccess, true},
		{StateUpgrading, StateError, true},
		{StateDownloading, StateError, true},
		{StateScheduled, StateScheduled, true},
		{StateError, StateScheduled, true},
		{StateSuccess, StateIdle, true},
		{StateUpgrading, StateIdle, false},
		{StateScheduled, StateUpgrading, false},
		{StateDownloading, StateSuccess, false},
		{StatePreparing, StateDownloading, false},
		{StateScheduled, StateIdle, false},
		{StateError, StateSuccess, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanInsert(t *testing.T) {
	assert.True(t, CanInsert(StateIdle))
	assert.True(t, CanInsert(StateScheduled))
	assert.True(t, CanInsert(StateError))
	assert.False(t, CanInsert(StateDownloading))
	assert.False(t, CanInsert(StateSuccess))
}

func TestDeviceUpgradeState_Validate(t *testing.T) {
	t.Run("accepts canceled in-flight record", func(t *testing.T) {
		state := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateDownloading, Canceled: true}
		assert.NoError(t, state.Validate())
	})

	t.Run("accepts canceled record forced to error", func(t *testing.T) {
		state := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateError, Canceled: true, ErrorMessage: "canceled"}
		assert.NoError(t, state.Validate())
	})

	t.Run("rejects unknown state", func(t *testing.T) {
		state := &DeviceUpgradeState{DeviceHid: "dev-1", State: "paused"}
		assert.ErrorIs(t, state.Validate(), ErrInvalidState)
	})

	t.Run("rejects negative firmware size", func(t *testing.T) {
		state := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateDownloading, FirmwareFileSize: -1}
		assert.ErrorIs(t, state.Validate(), ErrInvalidFirmwareSize)
	})
}

func TestCancelsFinished(t *testing.T) {
	finished := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateSuccess}
	canceledInFlight := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateDownloading, Canceled: true}

	t.Run("flagging a finished record", func(t *testing.T) {
		next := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateSuccess, Canceled: true}
		assert.True(t, CancelsFinished(finished, next))
	})

	t.Run("canceled upgrade forced to error", func(t *testing.T) {
		next := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateError, Canceled: true}
		assert.False(t, CancelsFinished(canceledInFlight, next))
	})

	t.Run("rewriting an already canceled terminal record", func(t *testing.T) {
		stored := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateError, Canceled: true}
		next := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateError, Canceled: true}
		assert.False(t, CancelsFinished(stored, next))
	})

	t.Run("new attempt after a finished one", func(t *testing.T) {
		next := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateScheduled, Canceled: true}
		assert.False(t, CancelsFinished(finished, next))
	})
}

func TestDeviceUpgradeState_UpgradeTimedOut(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-20 * time.Minute)

	state := &DeviceUpgradeState{DeviceHid: "dev-1", State: StateUpgrading, StartUpgradeTime: &started}
	assert.True(t, state.UpgradeTimedOut(now, 15*time.Minute))
	assert.False(t, state.UpgradeTimedOut(now, 30*time.Minute))

	state.StartUpgradeTime = nil
	assert.False(t, state.UpgradeTimedOut(now, time.Minute))

	state.State = StatePreparing
	state.StartUpgradeTime = &started
	assert.False(t, state.UpgradeTimedOut(now, time.Minute))
}

func TestDeviceUpgradeState_Phase(t *testing.T) {
	state := &DeviceUpgradeState{
		DeviceHid:        "dev-1",
		State:            StateDownloading,
		ReleaseHid:       "r1",
		FirmwareFileURL:  "http://x",
		FirmwareFileSize: 2048,
		MD5Checksum:      "abc",
		FileToken:        "tok",
	}

	phase, ok := state.Phase().(DownloadingPhase)
	require.True(t, ok)
	assert.Equal(t, "r1", phase.ReleaseHid)
	assert.Equal(t, FirmwareArtifact{URL: "http://x", Size: 2048, MD5Checksum: "abc", FileToken: "tok"}, phase.Artifact)

	state.State = StateError
	state.ErrorMessage = "checksum mismatch"
	errPhase, ok := state.Phase().(ErrorPhase)
	require.True(t, ok)
	assert.Equal(t, "checksum mismatch", errPhase.Message)
	assert.Equal(t, StateError, errPhase.State())

	state.State = "bogus"
	assert.Nil(t, state.Phase())
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := NewPersistenceError("upsert upgrade state", cause)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "upsert upgrade state")
	assert.NoError(t, NewPersistenceError("noop", nil))
}

func TestUpsertResult_MarshalText(t *testing.T) {
	text, err := Updated.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "updated", string(text))
	assert.Equal(t, "inserted", Inserted.String())
}
