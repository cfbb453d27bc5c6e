// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/CohortIQ/services/analytics/pipeline"
	"github.com/dgraph-io/badger/v4"
)

const jobPrefix = "job/"

// ErrEmptyID indicates a job without an ID.
var ErrEmptyID = errors.New("job id is empty")

func jobKey(id string) []byte {
	return []byte(jobPrefix + id)
}

// JobStore keeps finished jobs in BadgerDB. It implements pipeline.Store.
//
// Thread Safety: Safe for concurrent use.
type JobStore struct {
	db *badger.DB

	stopGC context.CancelFunc
	gcDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

var _ pipeline.Store = (*JobStore)(nil)

// Open opens a JobStore. A background GC runner starts for persistent
// stores with a GCInterval.
func Open(cfg Config) (*JobStore, error) {
	opts, err := badgerOptions(cfg)
	if err != nil {
		return nil, err
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}

	s := &JobStore{db: db}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopGC = cancel
		s.gcDone = make(chan struct{})
		go func() {
			defer close(s.gcDone)
			collectGarbage(ctx, db, cfg.GCInterval, cfg.discardRatio(), cfg.Logger)
		}()
	}
	return s, nil
}

// OpenInMemory opens a throwaway store.
func OpenInMemory() (*JobStore, error) {
	return Open(InMemoryConfig())
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *JobStore) Close() error {
	s.closeOnce.Do(func() {
		if s.stopGC != nil {
			s.stopGC()
			<-s.gcDone
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// SaveJob writes or replaces a job.
func (s *JobStore) SaveJob(ctx context.Context, job pipeline.Job) error {
	if job.ID == "" {
		return ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(jobKey(job.ID), data)
	})
}

// LoadJob reads a job. Unknown IDs yield pipeline.ErrJobNotFound.
func (s *JobStore) LoadJob(ctx context.Context, id string) (pipeline.Job, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Job{}, fmt.Errorf("context cancelled: %w", err)
	}

	var job pipeline.Job
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(jobKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return pipeline.Job{}, fmt.Errorf("%w: %s", pipeline.ErrJobNotFound, id)
	}
	if err != nil {
		return pipeline.Job{}, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs returns every stored job without results, newest first.
func (s *JobStore) ListJobs(ctx context.Context) ([]pipeline.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	jobs := []pipeline.Job{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var job pipeline.Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			job.Result = nil
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs, nil
}

// DeleteJob removes a job. Deleting an unknown ID is not an error.
func (s *JobStore) DeleteJob(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(jobKey(id))
	})
}
