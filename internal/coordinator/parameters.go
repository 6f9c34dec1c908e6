package coordinator

import "time"

// Parameters are the process-wide tuning constants of the offline engine.
// They are configuration, not per-call options; the backoff and threshold
// values are tunable, only the policy shapes are fixed.
type Parameters struct {
	// RetentionDays is the sliding expiry window of drafts.
	RetentionDays int
	// AutosaveInterval is the debounce window of autosave schedulers.
	AutosaveInterval time.Duration
	// MaxSyncRetries is the retry ceiling of a sync item.
	MaxSyncRetries int
	// BackoffBase and BackoffCap bound the retry backoff delays.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// CleanupInterval paces the expired-draft and completed-item sweep.
	CleanupInterval time.Duration
	// SyncInterval paces queue drains while online.
	SyncInterval time.Duration
	// StorageQuotaBytes is the assumed storage ceiling when the platform
	// cannot report one.
	StorageQuotaBytes int64
	// StorageWarnBytes and StorageLimitBytes drive the usage signals
	// exposed to the UI.
	StorageWarnBytes  int64
	StorageLimitBytes int64
}

// DefaultParameters returns the standard tuning.
func DefaultParameters() Parameters {
	return Parameters{
		RetentionDays:     7,
		AutosaveInterval:  2 * time.Second,
		MaxSyncRetries:    3,
		BackoffBase:       2 * time.Second,
		BackoffCap:        5 * time.Minute,
		CleanupInterval:   time.Hour,
		SyncInterval:      30 * time.Second,
		StorageQuotaBytes: 50 << 20,
		StorageWarnBytes:  40 << 20,
		StorageLimitBytes: 50 << 20,
	}
}

// Retention returns the draft retention window as a duration.
func (p Parameters) Retention() time.Duration {
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}
