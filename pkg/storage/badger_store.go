package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/devseo/siteaudit/pkg/log"
	"github.com/devseo/siteaudit/pkg/models"
	"github.com/devseo/siteaudit/pkg/utils"
)

const (
	jobKeyPrefix  = "job:"  // Prefix for job metadata keys ("job:<jobID>")
	pageKeyPrefix = "page:" // Prefix for page record keys ("page:<jobID>:<seq>")
	recKeyPrefix  = "rec:"  // Prefix for recommendation keys ("rec:<jobID>:<seq>")

	resultsDBDir = "results_db" // Subdirectory name within stateDir for Badger DB files

	gcInterval = 10 * time.Minute
)

// BadgerStore implements the ResultStore interface using BadgerDB
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

var _ ResultStore = (*BadgerStore)(nil)

// NewBadgerStore initializes and returns a new BadgerStore. One database
// holds the results of every audit run, so earlier jobs stay queryable. A
// value log GC goroutine runs until ctx is cancelled or the store is closed.
func NewBadgerStore(ctx context.Context, stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
	}

	dbPath := filepath.Join(stateDir, resultsDBDir)

	logger.Infof("Initializing result database at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	// Configure Badger options
	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger). // Use custom logrus adapter
		WithNumVersionsToKeep(1)  // Only the latest job/page/rec state matters

	// Open the database
	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dbPath, err)
	}

	go store.runGC(ctx, gcInterval)

	logger.Info("Result database initialized successfully.")
	return store, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
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

func jobKey(jobID string) []byte {
	return []byte(jobKeyPrefix + jobID)
}

// pageKey builds the key for one page record. The sequence number is zero
// padded so lexicographic key order matches crawl order during prefix scans.
func pageKey(jobID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s:%06d", pageKeyPrefix, jobID, seq))
}

// recKey builds the key for one recommendation, padded like pageKey so
// generation order survives the round-trip.
func recKey(jobID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s:%06d", recKeyPrefix, jobID, seq))
}

// SaveJob implements the ResultStore interface
func (s *BadgerStore) SaveJob(job models.CrawlJob) error {
	if s.db == nil {
		return errors.New("result store not initialized")
	}

	payload, errJson := json.Marshal(job)
	if errJson != nil {
		return fmt.Errorf("%w: failed to marshal job '%s': %w", utils.ErrParsing, job.ID, errJson)
	}

	err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.Set(jobKey(job.ID), payload)
	})
	if err != nil {
		return fmt.Errorf("%w: failed saving job '%s': %w", utils.ErrDatabase, job.ID, err)
	}
	return nil
}

// UpdateJob implements the ResultStore interface
func (s *BadgerStore) UpdateJob(job models.CrawlJob) error {
	if s.db == nil {
		return errors.New("result store not initialized")
	}

	payload, errJson := json.Marshal(job)
	if errJson != nil {
		return fmt.Errorf("%w: failed to marshal job '%s': %w", utils.ErrParsing, job.ID, errJson)
	}

	key := jobKey(job.ID)
	err := s.dbUpdate(func(txn *badger.Txn) error {
		// Refuse to create jobs that were never saved
		if _, errGet := txn.Get(key); errGet != nil {
			return errGet
		}
		return txn.Set(key, payload)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: job '%s'", utils.ErrNotFound, job.ID)
	}
	if err != nil {
		return fmt.Errorf("%w: failed updating job '%s': %w", utils.ErrDatabase, job.ID, err)
	}
	return nil
}

// GetJob implements the ResultStore interface
func (s *BadgerStore) GetJob(jobID string) (models.CrawlJob, error) {
	var job models.CrawlJob
	if s.db == nil {
		return job, errors.New("result store not initialized")
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(jobKey(jobID))
		if errGet != nil {
			return errGet
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.CrawlJob{}, fmt.Errorf("%w: job '%s'", utils.ErrNotFound, jobID)
	}
	if err != nil {
		return models.CrawlJob{}, fmt.Errorf("%w: failed getting job '%s': %w", utils.ErrDatabase, jobID, err)
	}
	return job, nil
}

// ListJobs implements the ResultStore interface
func (s *BadgerStore) ListJobs() ([]models.CrawlJob, error) {
	if s.db == nil {
		return nil, errors.New("result store not initialized")
	}

	var jobs []models.CrawlJob
	prefix := []byte(jobKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			errVal := item.Value(func(val []byte) error {
				var job models.CrawlJob
				if errJson := json.Unmarshal(val, &job); errJson != nil {
					// Skip corrupt entries rather than failing the whole listing
					s.log.Warnf("Skipping unparseable job entry '%s': %v", string(item.Key()), errJson)
					return nil
				}
				jobs = append(jobs, job)
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed listing jobs: %w", utils.ErrDatabase, err)
	}

	// Most recently started first
	slices.SortFunc(jobs, func(a, b models.CrawlJob) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs, nil
}

// SavePageRecords implements the ResultStore interface. Records are written
// in slice order inside a single transaction; the sequence-numbered keys
// preserve crawl order for ListPageRecords.
func (s *BadgerStore) SavePageRecords(jobID string, records []models.PageRecord) error {
	if s.db == nil {
		return errors.New("result store not initialized")
	}
	if len(records) == 0 {
		return nil
	}

	err := s.dbUpdate(func(txn *badger.Txn) error {
		for i, record := range records {
			payload, errJson := json.Marshal(record)
			if errJson != nil {
				return fmt.Errorf("%w: failed to marshal page record %d for job '%s': %w", utils.ErrParsing, i, jobID, errJson)
			}
			if errSet := txn.Set(pageKey(jobID, i), payload); errSet != nil {
				return errSet
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, utils.ErrParsing) {
			return err
		}
		return fmt.Errorf("%w: failed saving page records for job '%s': %w", utils.ErrDatabase, jobID, err)
	}
	return nil
}

// ListPageRecords implements the ResultStore interface
func (s *BadgerStore) ListPageRecords(jobID string) ([]models.PageRecord, error) {
	if s.db == nil {
		return nil, errors.New("result store not initialized")
	}

	var records []models.PageRecord
	prefix := []byte(pageKeyPrefix + jobID + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			errVal := item.Value(func(val []byte) error {
				var record models.PageRecord
				if errJson := json.Unmarshal(val, &record); errJson != nil {
					s.log.Warnf("Skipping unparseable page entry '%s': %v", string(item.Key()), errJson)
					return nil
				}
				records = append(records, record)
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed listing page records for job '%s': %w", utils.ErrDatabase, jobID, err)
	}
	return records, nil
}

// SaveRecommendations implements the ResultStore interface
func (s *BadgerStore) SaveRecommendations(jobID string, recs []models.Recommendation) error {
	if s.db == nil {
		return errors.New("result store not initialized")
	}
	if len(recs) == 0 {
		return nil
	}

	err := s.dbUpdate(func(txn *badger.Txn) error {
		for i, rec := range recs {
			payload, errJson := json.Marshal(rec)
			if errJson != nil {
				return fmt.Errorf("%w: failed to marshal recommendation %d for job '%s': %w", utils.ErrParsing, i, jobID, errJson)
			}
			if errSet := txn.Set(recKey(jobID, i), payload); errSet != nil {
				return errSet
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, utils.ErrParsing) {
			return err
		}
		return fmt.Errorf("%w: failed saving recommendations for job '%s': %w", utils.ErrDatabase, jobID, err)
	}
	return nil
}

// ListRecommendations implements the ResultStore interface
func (s *BadgerStore) ListRecommendations(jobID string) ([]models.Recommendation, error) {
	if s.db == nil {
		return nil, errors.New("result store not initialized")
	}

	var recs []models.Recommendation
	prefix := []byte(recKeyPrefix + jobID + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			errVal := item.Value(func(val []byte) error {
				var rec models.Recommendation
				if errJson := json.Unmarshal(val, &rec); errJson != nil {
					s.log.Warnf("Skipping unparseable recommendation entry '%s': %v", string(item.Key()), errJson)
					return nil
				}
				recs = append(recs, rec)
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed listing recommendations for job '%s': %w", utils.ErrDatabase, jobID, err)
	}
	return recs, nil
}

// UpdateRecommendationStatus implements the ResultStore interface.
// Recommendation IDs are random UUIDs, so the owning job is unknown and the
// whole "rec:" keyspace is scanned. Per-job result sets are small enough
// that this stays cheap.
func (s *BadgerStore) UpdateRecommendationStatus(recID string, status models.ImplementationStatus) error {
	if s.db == nil {
		return errors.New("result store not initialized")
	}
	if !status.IsValid() {
		return fmt.Errorf("invalid implementation status '%s'", status)
	}

	var updated bool
	err := s.dbUpdate(func(txn *badger.Txn) error {
		updated = false
		key, rec, found, errFind := s.findRecommendation(txn, recID)
		if errFind != nil {
			return errFind
		}
		if !found {
			return nil
		}
		rec.ImplementationStatus = status
		payload, errJson := json.Marshal(rec)
		if errJson != nil {
			return fmt.Errorf("%w: failed to marshal recommendation '%s': %w", utils.ErrParsing, recID, errJson)
		}
		updated = true
		return txn.Set(key, payload)
	})
	if err != nil {
		if errors.Is(err, utils.ErrParsing) {
			return err
		}
		return fmt.Errorf("%w: failed updating recommendation '%s': %w", utils.ErrDatabase, recID, err)
	}
	if !updated {
		return fmt.Errorf("%w: recommendation '%s'", utils.ErrNotFound, recID)
	}
	return nil
}

// findRecommendation scans the recommendation keyspace for the entry with
// the given ID. The iterator is closed before returning so the caller may
// write to the same transaction.
func (s *BadgerStore) findRecommendation(txn *badger.Txn, recID string) ([]byte, models.Recommendation, bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(recKeyPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var candidate models.Recommendation
		var errJson error
		errVal := item.Value(func(val []byte) error {
			errJson = json.Unmarshal(val, &candidate)
			return nil
		})
		if errVal != nil {
			return nil, models.Recommendation{}, false, errVal
		}
		if errJson != nil {
			s.log.Warnf("Skipping unparseable recommendation entry '%s': %v", string(item.Key()), errJson)
			continue
		}
		if candidate.ID != recID {
			continue
		}
		return item.KeyCopy(nil), candidate, true, nil
	}
	return nil, models.Recommendation{}, false, nil
}

// runGC periodically runs BadgerDB value log garbage collection. Launched by
// NewBadgerStore; returns when ctx is cancelled.
func (s *BadgerStore) runGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute // Default interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Debug("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				// Run GC if log is at least 50% reclaimable space
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close implements the ResultStore interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing result DB...")
		err := s.db.Close()
		if err != nil {
			s.log.Errorf("Error closing result DB: %v", err)
			return err
		}
		s.log.Info("Result DB closed.")
		return nil
	}
	s.log.Info("Result DB already closed or was not initialized.")
	return nil
}
