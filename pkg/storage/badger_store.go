package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/page-loader/pkg/models"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

const (
	runKeyPrefix   = "run:"    // run:<started_unixnano>:<run_id> -> RunRecord
	assetKeyPrefix = "asset:"  // asset:<run_id>:<index> -> AssetRecord
	runsDBDir      = "runs.db" // Subdirectory of the state dir holding the Badger files
)

// BadgerStore implements OutcomeStore using BadgerDB
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

var _ OutcomeStore = (*BadgerStore)(nil)

// NewBadgerStore opens (creating if needed) the run history under stateDir
func NewBadgerStore(stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, runsDBDir)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating state directory '%s': %w", utils.ErrDatabase, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(newBadgerLogger(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger database at '%s': %w", utils.ErrDatabase, dbPath, err)
	}
	logger.WithField("path", dbPath).Debug("Run history opened")
	return &BadgerStore{db: db, log: logger}, nil
}

// runKey sorts lexically in start-time order
func runKey(rec models.RunRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", runKeyPrefix, rec.StartedAt.UnixNano(), rec.RunID))
}

func assetKey(runID string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s:%06d", assetKeyPrefix, runID, index))
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for transaction conflicts
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func (s *BadgerStore) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding '%s': %w", utils.ErrDatabase, key, err)
	}
	if err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		s.log.WithField("key", string(key)).Errorf("DB update error: %v", err)
		return fmt.Errorf("%w: writing '%s': %w", utils.ErrDatabase, key, err)
	}
	return nil
}

// RecordRun implements OutcomeStore
func (s *BadgerStore) RecordRun(rec models.RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("%w: run record without run_id", utils.ErrDatabase)
	}
	return s.put(runKey(rec), rec)
}

// RecordAsset implements OutcomeStore
func (s *BadgerStore) RecordAsset(runID string, index int, rec models.AssetRecord) error {
	return s.put(assetKey(runID, index), rec)
}

// RecentRuns implements OutcomeStore
func (s *BadgerStore) RecentRuns(limit int) ([]models.RunRecord, error) {
	var runs []models.RunRecord
	prefix := []byte(runKeyPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek lands on the last key <= the seek key
		for it.Seek(append(append([]byte{}, prefix...), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			item := it.Item()
			var rec models.RunRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				s.log.Warnf("Skipping unreadable run record '%s': %v", item.Key(), err)
				continue
			}
			runs = append(runs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing runs: %w", utils.ErrDatabase, err)
	}
	return runs, nil
}

// AssetsForRun implements OutcomeStore
func (s *BadgerStore) AssetsForRun(runID string) ([]models.AssetRecord, error) {
	var assets []models.AssetRecord
	prefix := []byte(assetKeyPrefix + runID + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec models.AssetRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				s.log.Warnf("Skipping unreadable asset record '%s': %v", item.Key(), err)
				continue
			}
			assets = append(assets, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing assets of run '%s': %w", utils.ErrDatabase, runID, err)
	}
	return assets, nil
}

// RunGC implements OutcomeStore
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				// Rewrite while at least half of a value log file is reclaimable
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// Close implements OutcomeStore
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing run history: %v", err)
		return fmt.Errorf("%w: closing: %w", utils.ErrDatabase, err)
	}
	return nil
}

// RecordPage stores a finished page run and all its asset outcomes
// pageErr is the error DownloadPage returned, nil on success.
func RecordPage(store OutcomeStore, result *models.PageResult, pageErr error) error {
	rec := models.RunRecord{
		RunID:       result.RunID,
		SourceURL:   result.SourceURL,
		PagePath:    result.PagePath,
		Status:      models.PageStatusSuccess,
		AssetsTotal: len(result.Assets),
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
	}
	rec.AssetsFailed = len(result.Failed())
	if pageErr != nil {
		rec.Status = models.PageStatusFailure
		rec.ErrorType = utils.CategorizeError(pageErr)
		rec.Error = pageErr.Error()
	}

	var errs []error
	for i, a := range result.Assets {
		if err := store.RecordAsset(result.RunID, i, models.NewAssetRecord(a)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := store.RecordRun(rec); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
