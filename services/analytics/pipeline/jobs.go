// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/google/uuid"
)

// subscriberBuffer holds every status a job can still emit.
const subscriberBuffer = 4

// DefaultRetainedJobs caps the finished jobs kept in memory when they
// cannot be persisted.
const DefaultRetainedJobs = 1000

// Store persists finished jobs. LoadJob returns ErrJobNotFound for
// unknown IDs. ListJobs returns jobs without results. DeleteJob of an
// unknown ID is not an error.
type Store interface {
	SaveJob(ctx context.Context, job Job) error
	LoadJob(ctx context.Context, id string) (Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	DeleteJob(ctx context.Context, id string) error
}

// Jobs tracks asynchronous analyses.
//
// Description:
//
//	Create hands rows to the Worker and returns immediately with a queued
//	job. Status changes are pushed to subscribers. Finished jobs are
//	written to the Store and then dropped from memory. Without a Store,
//	or when a save fails, the newest finished jobs stay in memory up to
//	the retention cap and older ones are evicted.
//
// Thread Safety: Safe for concurrent use.
type Jobs struct {
	worker *Worker
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	jobs     map[string]*Job
	finished []string // unpersisted finished IDs, oldest first
	retain   int
	subs     map[string]map[int]chan Job
	nextSub  int
	wg       sync.WaitGroup
}

// NewJobs creates a tracker. store and logger may be nil.
func NewJobs(worker *Worker, store Store, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		worker: worker,
		store:  store,
		logger: logger,
		now:    time.Now,
		jobs:   make(map[string]*Job),
		retain: DefaultRetainedJobs,
		subs:   make(map[string]map[int]chan Job),
	}
}

// WithRetention sets how many unpersisted finished jobs stay in memory.
// n < 1 keeps DefaultRetainedJobs.
func (j *Jobs) WithRetention(n int) *Jobs {
	if n >= 1 {
		j.retain = n
	}
	return j
}

// Create submits rows as a new job and returns its queued snapshot.
//
// ctx only carries trace context; the job outlives the request that
// created it.
func (j *Jobs) Create(ctx context.Context, rows []cohort.EventRow) Job {
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobQueued,
		Rows:      len(rows),
		CreatedAt: j.now().UTC(),
	}

	j.mu.Lock()
	j.jobs[job.ID] = job
	snapshot := *job
	j.mu.Unlock()

	logger := j.logger.With(slog.String("job_id", job.ID))
	logger.Info("job queued", slog.Int("rows", len(rows)))

	bg := context.WithoutCancel(ctx)
	responses := j.worker.submit(bg, rows, func() {
		j.update(job.ID, func(jb *Job) { jb.Status = JobRunning })
	})

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		resp := <-responses
		j.complete(bg, job.ID, resp, logger)
	}()

	return snapshot
}

func (j *Jobs) complete(ctx context.Context, id string, resp Response, logger *slog.Logger) {
	finished := j.now().UTC()
	final := j.update(id, func(jb *Job) {
		jb.FinishedAt = &finished
		if resp.Type == ResponseSuccess {
			jb.Status = JobSucceeded
			jb.Result = resp.Payload
		} else {
			jb.Status = JobFailed
			jb.Error = resp.Error
		}
	})
	logger.Info("job finished", slog.String("status", string(final.Status)))

	if j.store != nil {
		err := j.store.SaveJob(ctx, final)
		if err == nil {
			j.mu.Lock()
			delete(j.jobs, id)
			j.mu.Unlock()
			return
		}
		logger.Error("persist job", slog.String("error", err.Error()))
	}
	j.retainFinished(id)
}

// retainFinished keeps id in memory and evicts the oldest finished jobs
// beyond the cap.
func (j *Jobs) retainFinished(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.jobs[id]; !ok {
		return
	}
	j.finished = append(j.finished, id)
	for len(j.finished) > j.retain {
		delete(j.jobs, j.finished[0])
		j.finished = j.finished[1:]
	}
}

// update mutates a tracked job and publishes the new status.
func (j *Jobs) update(id string, fn func(*Job)) Job {
	j.mu.Lock()
	defer j.mu.Unlock()

	job, ok := j.jobs[id]
	if !ok {
		return Job{ID: id}
	}
	fn(job)
	snapshot := *job

	event := snapshot
	event.Result = nil
	for sid, ch := range j.subs[id] {
		ch <- event
		if snapshot.Status.Done() {
			close(ch)
			delete(j.subs[id], sid)
		}
	}
	if snapshot.Status.Done() {
		delete(j.subs, id)
	}
	return snapshot
}

// Get returns a job by ID.
func (j *Jobs) Get(ctx context.Context, id string) (Job, error) {
	j.mu.Lock()
	job, ok := j.jobs[id]
	var snapshot Job
	if ok {
		snapshot = *job
	}
	j.mu.Unlock()
	if ok {
		return snapshot, nil
	}

	if j.store == nil {
		return Job{}, ErrJobNotFound
	}
	stored, err := j.store.LoadJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return stored, nil
}

// List returns every known job without results, newest first. Jobs still
// in memory take precedence over stored copies.
func (j *Jobs) List(ctx context.Context) ([]Job, error) {
	j.mu.Lock()
	out := make([]Job, 0, len(j.jobs))
	seen := make(map[string]struct{}, len(j.jobs))
	for id, job := range j.jobs {
		snapshot := *job
		snapshot.Result = nil
		out = append(out, snapshot)
		seen[id] = struct{}{}
	}
	j.mu.Unlock()

	if j.store != nil {
		stored, err := j.store.ListJobs(ctx)
		if err != nil {
			return nil, err
		}
		for _, job := range stored {
			if _, dup := seen[job.ID]; dup {
				continue
			}
			job.Result = nil
			out = append(out, job)
		}
	}

	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

// Delete removes a finished job from memory and from the Store.
//
// Outputs:
//   - error: ErrJobActive for a queued or running job, ErrJobNotFound for
//     an unknown ID, or a Store failure.
func (j *Jobs) Delete(ctx context.Context, id string) error {
	j.mu.Lock()
	job, inMemory := j.jobs[id]
	if inMemory {
		if !job.Status.Done() {
			j.mu.Unlock()
			return ErrJobActive
		}
		delete(j.jobs, id)
		if i := slices.Index(j.finished, id); i >= 0 {
			j.finished = slices.Delete(j.finished, i, i+1)
		}
	}
	j.mu.Unlock()

	if j.store == nil {
		if !inMemory {
			return ErrJobNotFound
		}
		return nil
	}
	if !inMemory {
		if _, err := j.store.LoadJob(ctx, id); err != nil {
			return err
		}
	}
	if err := j.store.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	j.logger.Info("job deleted", slog.String("job_id", id))
	return nil
}

// Subscribe streams status snapshots of a job, starting with its current
// one. The channel is closed after the terminal status. Snapshots carry
// no Result; fetch it with Get. cancel releases an unfinished
// subscription and is safe to call more than once.
func (j *Jobs) Subscribe(ctx context.Context, id string) (<-chan Job, func(), error) {
	ch := make(chan Job, subscriberBuffer)
	noop := func() {}

	j.mu.Lock()
	job, ok := j.jobs[id]
	if ok && !job.Status.Done() {
		event := *job
		event.Result = nil
		ch <- event

		if j.subs[id] == nil {
			j.subs[id] = make(map[int]chan Job)
		}
		sid := j.nextSub
		j.nextSub++
		j.subs[id][sid] = ch
		j.mu.Unlock()

		cancel := func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			if sub, live := j.subs[id][sid]; live {
				close(sub)
				delete(j.subs[id], sid)
			}
		}
		return ch, cancel, nil
	}
	j.mu.Unlock()

	// Finished: either still in memory or already persisted.
	done, err := j.Get(ctx, id)
	if err != nil {
		return nil, noop, err
	}
	done.Result = nil
	ch <- done
	close(ch)
	return ch, noop, nil
}

// Wait blocks until every created job has finished and been persisted.
func (j *Jobs) Wait() {
	j.wg.Wait()
}

// IsNotFound reports whether err means an unknown job.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}
