package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/page-loader/pkg/models"
)

// OutcomeStore keeps a history of page downloads and their per-asset outcomes
// It is a record only; nothing reads it back to skip or resume work.
type OutcomeStore interface {
	// RecordRun stores or replaces the record of one page run
	RecordRun(rec models.RunRecord) error

	// RecordAsset stores the outcome of the index-th asset reference of a run
	RecordAsset(runID string, index int, rec models.AssetRecord) error

	// RecentRuns returns up to limit runs, newest first. limit <= 0 returns all runs.
	RecentRuns(limit int) ([]models.RunRecord, error)

	// AssetsForRun returns the asset records of a run in reference order
	AssetsForRun(runID string) ([]models.AssetRecord, error)

	// RunGC runs periodic value-log garbage collection until ctx is done
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database
	Close() error
}
