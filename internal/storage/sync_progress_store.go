package storage

import "context"

// SyncProgress is the newest chain position the mirror has applied.
type SyncProgress struct {
	Slot      int64
	Signature string
}

// SyncProgressStore persists mirror state so a restarted mirror resumes from
// the last processed transaction instead of replaying program history.
type SyncProgressStore interface {
	// GetLastProcessed returns ErrNotFound until progress is first saved.
	GetLastProcessed(ctx context.Context) (*SyncProgress, error)

	// SetLastProcessed records progress. A position at an older slot than the
	// stored one is ignored, so backfill and live delivery may both report.
	SetLastProcessed(ctx context.Context, progress *SyncProgress) error
}
