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
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultWorkers is the default number of concurrent analyses.
	DefaultWorkers = 1

	// DefaultQueueSize is the default number of waiting submissions.
	DefaultQueueSize = 16
)

// WorkerConfig sizes a Worker.
type WorkerConfig struct {
	// Workers is the number of analyses that run at once. Default 1.
	Workers int

	// QueueSize is the number of submissions that may wait for a slot.
	// Zero means DefaultQueueSize; negative means no waiting at all.
	QueueSize int

	Logger *slog.Logger
}

// Worker runs analyses in the background.
//
// Description:
//
//	Every submission gets its own goroutine and its own response channel.
//	A weighted semaphore bounds how many analyses run at once. Callers
//	that need ordered results must not submit overlapping requests.
//
// Thread Safety: Safe for concurrent use.
type Worker struct {
	metrics  *Metrics
	logger   *slog.Logger
	sem      *semaphore.Weighted
	capacity int64

	mu      sync.Mutex
	pending int64
	closed  bool
	wg      sync.WaitGroup

	// run is the analysis entry point; tests swap it out.
	run func(context.Context, []cohort.EventRow) (*Payload, error)
}

// NewWorker creates a Worker around analyzer. A nil metrics disables
// Prometheus recording.
func NewWorker(analyzer *Analyzer, metrics *Metrics, cfg WorkerConfig) *Worker {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queue := cfg.QueueSize
	switch {
	case queue == 0:
		queue = DefaultQueueSize
	case queue < 0:
		queue = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		metrics:  metrics,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(workers)),
		capacity: int64(workers + queue),
	}
	w.run = analyzer.Analyze
	return w
}

// Submit starts an analysis of rows.
//
// Description:
//
//	The returned channel yields exactly one Response and is then closed.
//	Rejections (closed worker, full queue) are delivered the same way.
//	ctx cancels a submission that is still waiting for a slot; once the
//	analysis has started it runs to completion.
//
// Inputs:
//   - ctx: Bounds the wait for a slot and carries the trace.
//   - rows: Validated event rows. The slice must not be modified until
//     the response arrives.
//
// Outputs:
//   - <-chan Response: Buffered; the worker never blocks on it.
func (w *Worker) Submit(ctx context.Context, rows []cohort.EventRow) <-chan Response {
	return w.submit(ctx, rows, nil)
}

// submit is Submit with a hook that fires once the analysis holds a slot.
func (w *Worker) submit(ctx context.Context, rows []cohort.EventRow, onStart func()) <-chan Response {
	out := make(chan Response, 1)

	w.mu.Lock()
	switch {
	case w.closed:
		w.mu.Unlock()
		out <- failure(ErrClosed)
		close(out)
		return out
	case w.pending >= w.capacity:
		w.mu.Unlock()
		w.finish(out, failure(ErrQueueFull))
		return out
	}
	w.pending++
	w.wg.Add(1)
	w.mu.Unlock()

	w.gauge(func(m *Metrics) { m.QueueDepth.Inc() })
	go w.process(ctx, rows, onStart, out)
	return out
}

func (w *Worker) process(ctx context.Context, rows []cohort.EventRow, onStart func(), out chan<- Response) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		w.pending--
		w.mu.Unlock()
	}()

	err := w.sem.Acquire(ctx, 1)
	w.gauge(func(m *Metrics) { m.QueueDepth.Dec() })
	if err != nil {
		w.finish(out, failure(fmt.Errorf("waiting for worker slot: %w", err)))
		return
	}
	defer w.sem.Release(1)

	if onStart != nil {
		onStart()
	}

	w.gauge(func(m *Metrics) { m.InFlight.Inc() })
	defer w.gauge(func(m *Metrics) { m.InFlight.Dec() })

	// Started analyses ignore later cancellation.
	w.finish(out, w.safeRun(context.WithoutCancel(ctx), rows))
}

// safeRun converts a panic inside the engines into an ERROR response.
func (w *Worker) safeRun(ctx context.Context, rows []cohort.EventRow) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("analysis panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			resp = failure(fmt.Errorf("analysis panicked: %v", r))
		}
	}()

	p, err := w.run(ctx, rows)
	if err != nil {
		return failure(err)
	}
	return success(p)
}

func (w *Worker) finish(out chan<- Response, resp Response) {
	if w.metrics != nil {
		w.metrics.RecordJob(resp.Type == ResponseSuccess)
	}
	if resp.Type == ResponseError {
		w.logger.Warn("analysis failed", slog.String("error", resp.Error))
	}
	out <- resp
	close(out)
}

func (w *Worker) gauge(fn func(*Metrics)) {
	if w.metrics != nil {
		fn(w.metrics)
	}
}

// Close rejects new submissions and waits for accepted ones to finish.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.wg.Wait()
}
