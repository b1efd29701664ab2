package models

import "time"

// Phase is a typed view of a DeviceUpgradeState carrying only the fields
// that mean something in its state. DeviceUpgradeState stays the stored form.
type Phase interface {
	State() UpgradeState
}

// FirmwareArtifact describes the file handed over with the download command
type FirmwareArtifact struct {
	URL         string
	Size        int64
	MD5Checksum string
	FileToken   string
}

type IdlePhase struct{}

type ScheduledPhase struct {
	ReleaseHid string
}

type DownloadingPhase struct {
	ReleaseHid string
	Artifact   FirmwareArtifact
}

type PreparingPhase struct {
	ReleaseHid string
	Artifact   FirmwareArtifact
}

type UpgradingPhase struct {
	ReleaseHid     string
	TransactionHid string
	StartedAt      *time.Time
}

type SuccessPhase struct {
	DeviceName     string
	TransactionHid string
}

type ErrorPhase struct {
	DeviceName      string
	Message         string
	TransactionHid  string
	ConfirmAsFailed bool
}

func (IdlePhase) State() UpgradeState        { return StateIdle }
func (ScheduledPhase) State() UpgradeState   { return StateScheduled }
func (DownloadingPhase) State() UpgradeState { return StateDownloading }
func (PreparingPhase) State() UpgradeState   { return StatePreparing }
func (UpgradingPhase) State() UpgradeState   { return StateUpgrading }
func (SuccessPhase) State() UpgradeState     { return StateSuccess }
func (ErrorPhase) State() UpgradeState       { return StateError }

// Phase returns the typed view of d, or nil for an unknown state
func (d *DeviceUpgradeState) Phase() Phase {
	artifact := FirmwareArtifact{
		URL:         d.FirmwareFileURL,
		Size:        d.FirmwareFileSize,
		MD5Checksum: d.MD5Checksum,
		FileToken:   d.FileToken,
	}

	switch d.State {
	case StateIdle:
		return IdlePhase{}
	case StateScheduled:
		return ScheduledPhase{ReleaseHid: d.ReleaseHid}
	case StateDownloading:
		return DownloadingPhase{ReleaseHid: d.ReleaseHid, Artifact: artifact}
	case StatePreparing:
		return PreparingPhase{ReleaseHid: d.ReleaseHid, Artifact: artifact}
	case StateUpgrading:
		return UpgradingPhase{
			ReleaseHid:     d.ReleaseHid,
			TransactionHid: d.TransactionHid,
			StartedAt:      d.StartUpgradeTime,
		}
	case StateSuccess:
		return SuccessPhase{DeviceName: d.DeviceName, TransactionHid: d.TransactionHid}
	case StateError:
		return ErrorPhase{
			DeviceName:      d.DeviceName,
			Message:         d.ErrorMessage,
			TransactionHid:  d.TransactionHid,
			ConfirmAsFailed: d.ConfirmAsFailedTransaction,
		}
	}
	return nil
}
