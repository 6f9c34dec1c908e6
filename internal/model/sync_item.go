package model

import (
	"time"
)

// A SyncStatus is the delivery state of a queued mutation.
type SyncStatus string

// Sync item statuses.
//
// pending -> syncing -> completed
// pending -> syncing -> pending (retry) -> ... -> failed
// failed  -> pending (manual retry only)
//
// completed is terminal and never reverted.
const (
	SyncPending   SyncStatus = "pending"
	SyncSyncing   SyncStatus = "syncing"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// A SyncItem is a buffered mutation awaiting delivery to the remote backend.
// Payload is opaque to this module; the remote handler owns its shape.
type SyncItem struct {
	Base `msgpack:",inline" storm:"inline"`

	OwnerKey      string     `json:"owner_key"                 msgpack:"owner_key" storm:"index"`
	Action        string     `json:"action"                    msgpack:"action"    storm:"index"`
	Payload       []byte     `json:"payload,omitempty"         msgpack:"payload"`
	Status        SyncStatus `json:"status"                    msgpack:"status"    storm:"index"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" msgpack:"last_attempt_at"`
	RetryCount    int        `json:"retry_count"               msgpack:"retry_count"`
	MaxRetries    int        `json:"max_retries"               msgpack:"max_retries"`
	Error         string     `json:"error,omitempty"           msgpack:"error"`
}
