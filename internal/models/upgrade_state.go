package models

import (
	"fmt"
	"strings"
	"time"
)

// UpgradeState is the phase of a device's firmware upgrade
type UpgradeState string

const (
	StateIdle        UpgradeState = "idle"
	StateScheduled   UpgradeState = "scheduled"
	StateDownloading UpgradeState = "downloading"
	StatePreparing   UpgradeState = "preparing"
	StateUpgrading   UpgradeState = "upgrading"
	StateSuccess     UpgradeState = "success"
	StateError       UpgradeState = "error"
)

// ParseUpgradeState converts a stored or user-supplied value into an UpgradeState
func ParseUpgradeState(s string) (UpgradeState, error) {
	state := UpgradeState(strings.ToLower(strings.TrimSpace(s)))
	if !state.Valid() {
		return "", ErrInvalidState
	}
	return state, nil
}

// Valid reports whether s is one of the known states
func (s UpgradeState) Valid() bool {
	switch s {
	case StateIdle, StateScheduled, StateDownloading, StatePreparing,
		StateUpgrading, StateSuccess, StateError:
		return true
	}
	return false
}

// IsTerminal reports whether the upgrade attempt has finished
func (s UpgradeState) IsTerminal() bool {
	return s == StateSuccess || s == StateError
}

// forward lists the single successor of each in-flight state
var forward = map[UpgradeState]UpgradeState{
	StateIdle:        StateScheduled,
	StateScheduled:   StateDownloading,
	StateDownloading: StatePreparing,
	StatePreparing:   StateUpgrading,
	StateUpgrading:   StateSuccess,
}

// CanTransition reports whether a stored record in state from may be
// replaced by a record in state to.
func CanTransition(from, to UpgradeState) bool {
	switch {
	case from == to:
		// same-state rewrite refreshes fields or the canceled flag
		return true
	case to == StateError:
		return true
	case forward[from] == to:
		return true
	case to == StateIdle || to == StateScheduled:
		// a new attempt starts over once the previous one has finished
		return from.IsTerminal() || from == StateIdle
	}
	return false
}

// CanInsert reports whether a device without a record may start in state s
func CanInsert(s UpgradeState) bool {
	return s == StateIdle || s == StateScheduled || s == StateError
}

// DeviceUpgradeState is the persisted FOTA progress of one device
type DeviceUpgradeState struct {
	DeviceHid                  string       `json:"deviceHid"`
	State                      UpgradeState `json:"state"`
	DeviceName                 string       `json:"deviceName,omitempty"`
	ErrorMessage               string       `json:"errorMessage,omitempty"`
	TransactionHid             string       `json:"transactionHid,omitempty"`
	FirmwareFileURL            string       `json:"firmwareFileUrl,omitempty"`
	FirmwareFileSize           int64        `json:"firmwareFileSize,omitempty"`
	MD5Checksum                string       `json:"md5checksum,omitempty"`
	FileToken                  string       `json:"fileToken,omitempty"`
	ReleaseHid                 string       `json:"releaseHid,omitempty"`
	ConfirmAsFailedTransaction bool         `json:"confirmAsFailedTransaction"`
	StartUpgradeTime           *time.Time   `json:"startUpgradeTime,omitempty"`
	Canceled                   bool         `json:"canceled"`
	UpdatedAt                  time.Time    `json:"updatedAt"`
}

// NewDeviceUpgradeState creates an idle record for a device
func NewDeviceUpgradeState(deviceHid string) (*DeviceUpgradeState, error) {
	if strings.TrimSpace(deviceHid) == "" {
		return nil, ErrEmptyDeviceHid
	}
	return &DeviceUpgradeState{
		DeviceHid: deviceHid,
		State:     StateIdle,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Validate checks the fields every record must carry
func (d *DeviceUpgradeState) Validate() error {
	if strings.TrimSpace(d.DeviceHid) == "" {
		return ErrEmptyDeviceHid
	}
	if !d.State.Valid() {
		return ErrInvalidState
	}
	if d.FirmwareFileSize < 0 {
		return ErrInvalidFirmwareSize
	}
	return nil
}

// CancelsFinished reports whether next sets the canceled flag on a record
// whose stored version already finished in the same state. A canceled
// in-flight record may still move on to a terminal state.
func CancelsFinished(stored, next *DeviceUpgradeState) bool {
	return stored.State.IsTerminal() && !stored.Canceled &&
		next.Canceled && next.State == stored.State
}

// UpgradeTimedOut reports whether an upgrading device has been flashing
// for longer than timeout. Records without a start time never time out.
func (d *DeviceUpgradeState) UpgradeTimedOut(now time.Time, timeout time.Duration) bool {
	if d.State != StateUpgrading || d.StartUpgradeTime == nil || timeout <= 0 {
		return false
	}
	return now.Sub(*d.StartUpgradeTime) > timeout
}

// UpsertResult tells the caller whether Upsert replaced or appended a record
type UpsertResult int

const (
	Inserted UpsertResult = iota
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// MarshalText lets UpsertResult encode as a JSON string
func (r UpsertResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *UpsertResult) UnmarshalText(text []byte) error {
	switch string(text) {
	case "inserted":
		*r = Inserted
	case "updated":
		*r = Updated
	default:
		return fmt.Errorf("unknown upsert result %q", text)
	}
	return nil
}

var (
	ErrEmptyDeviceHid      = StoreError{"device hid cannot be empty"}
	ErrInvalidState        = StoreError{"unknown upgrade state"}
	ErrInvalidFirmwareSize = StoreError{"firmware file size cannot be negative"}
)
