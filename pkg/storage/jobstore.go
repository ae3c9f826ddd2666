package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	applog "review-scraper/pkg/log"
	"review-scraper/pkg/models"
	"review-scraper/pkg/utils"
)

const jobKeyPrefix = "job:"

// JobStore is a durable mirror of the job registry. It exists so job
// history survives restarts; the in-memory registry stays authoritative
// and the mirror is strictly best-effort.
type JobStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// OpenJobStore initializes the mirror database under stateDir
func OpenJobStore(stateDir string, logger *logrus.Entry) (*JobStore, error) {
	dbPath := filepath.Join(stateDir, "jobs_db")
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %v", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := applog.NewBadgerAdapter(logger.WithField("component", "jobstore-db"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening job store at %s: %v", utils.ErrDatabase, dbPath, err)
	}

	logger.WithField("path", dbPath).Info("Job history mirror initialized")
	return &JobStore{db: db, log: logger}, nil
}

// SaveJob upserts the job record keyed by its ID
func (s *JobStore) SaveJob(job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: marshalling job %s: %v", utils.ErrDatabase, job.ID, err)
	}
	key := []byte(jobKeyPrefix + job.ID)

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, data))
	})
	if err != nil {
		return fmt.Errorf("%w: saving job %s: %v", utils.ErrDatabase, job.ID, err)
	}
	return nil
}

// LoadJob reads one job record by ID
func (s *JobStore) LoadJob(id string) (models.Job, error) {
	var job models.Job
	key := []byte(jobKeyPrefix + id)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return utils.ErrJobNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if err != nil {
		if errors.Is(err, utils.ErrJobNotFound) {
			return models.Job{}, err
		}
		return models.Job{}, fmt.Errorf("%w: loading job %s: %v", utils.ErrDatabase, id, err)
	}
	return job, nil
}

// ListJobs returns every mirrored job record
func (s *JobStore) ListJobs() ([]models.Job, error) {
	var jobs []models.Job

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(jobKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var job models.Job
				if err := json.Unmarshal(val, &job); err != nil {
					// a corrupt record should not hide the rest
					s.log.Warnf("Skipping unreadable job record %s: %v", it.Item().Key(), err)
					return nil
				}
				jobs = append(jobs, job)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing jobs: %v", utils.ErrDatabase, err)
	}
	return jobs, nil
}

// DeleteJob removes a mirrored record; deleting an absent job is a no-op
func (s *JobStore) DeleteJob(id string) error {
	key := []byte(jobKeyPrefix + id)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("%w: deleting job %s: %v", utils.ErrDatabase, id, err)
	}
	return nil
}

// Close flushes and closes the underlying database
func (s *JobStore) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: closing job store: %v", utils.ErrDatabase, err)
	}
	return nil
}
