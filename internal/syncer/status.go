package syncer

import "time"

// Status is the raw sync machine state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// DisplayStatus is the richer derived status for display surfaces.
type DisplayStatus string

const (
	DisplaySynced        DisplayStatus = "synced"
	DisplaySyncing       DisplayStatus = "syncing"
	DisplayOffline       DisplayStatus = "offline"
	DisplayPendingUpload DisplayStatus = "pendingUpload"
	DisplayLoading       DisplayStatus = "loading"
)

// Metadata is the externally visible sync state delivered to
// subscribers on every change.
type Metadata struct {
	Status              Status
	ConsecutiveFailures int
	LastError           string
	LastFailureAt       time.Time
	LastConfirmed       time.Time
	PendingCount        int
}

// Display derives the display status. Priority, highest first:
// syncing, then error (shown as offline), then pending uploads, then
// settled success/idle as synced; anything else is still loading.
func (m Metadata) Display() DisplayStatus {
	switch {
	case m.Status == StatusSyncing:
		return DisplaySyncing
	case m.Status == StatusError:
		return DisplayOffline
	case m.PendingCount > 0:
		return DisplayPendingUpload
	case m.Status == StatusSuccess || m.Status == StatusIdle:
		return DisplaySynced
	default:
		return DisplayLoading
	}
}
