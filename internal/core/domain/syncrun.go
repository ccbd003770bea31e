package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SyncType string

const (
	SyncFull          SyncType = "full"
	SyncIncremental   SyncType = "incremental"
	SyncDeletionCheck SyncType = "deletion_check"
)

func ParseSyncType(raw string) (SyncType, error) {
	switch SyncType(raw) {
	case SyncFull, SyncIncremental, SyncDeletionCheck:
		return SyncType(raw), nil
	case "":
		return SyncFull, nil
	default:
		return "", WrapError(ErrValidation, "parse sync type", fmt.Errorf("unknown sync type %q", raw))
	}
}

type SyncStatus string

const (
	SyncRunning   SyncStatus = "running"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// SyncRun brackets one source synchronization pass. The only legal
// transitions are running -> completed and running -> failed; a terminal row
// is immutable except for retention deletion.
type SyncRun struct {
	ID                 string         `json:"id"`
	Source             string         `json:"source"`
	Type               SyncType       `json:"sync_type"`
	Status             SyncStatus     `json:"status"`
	StartedAt          time.Time      `json:"started_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	DocumentsProcessed int            `json:"documents_processed"`
	DocumentsDeleted   int            `json:"documents_deleted"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

func NewSyncRun(source string, syncType SyncType) *SyncRun {
	return &SyncRun{
		ID:        uuid.NewString(),
		Source:    source,
		Type:      syncType,
		Status:    SyncRunning,
		StartedAt: time.Now().UTC(),
	}
}

func (r *SyncRun) Terminal() bool {
	return r.Status == SyncCompleted || r.Status == SyncFailed
}

// Failure messages are stored verbatim up to this bound.
const maxErrorMessageLen = 2000

func TruncateErrorMessage(message string) string {
	if len(message) <= maxErrorMessageLen {
		return message
	}
	return message[:maxErrorMessageLen]
}
