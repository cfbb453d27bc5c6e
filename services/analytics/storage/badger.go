// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists finished analysis jobs in BadgerDB.
//
// Jobs are stored as JSON under "job/{id}". The store is embedded; an
// in-memory mode serves tests and one-off CLI runs.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config selects where and how jobs are persisted.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory.
	Path string `yaml:"path"`

	// InMemory disables disk persistence.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites enables synchronous writes.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration `yaml:"gc_interval"`

	// GCDiscardRatio is the minimum garbage ratio before GC rewrites.
	GCDiscardRatio float64 `yaml:"gc_discard_ratio"`

	// Logger receives BadgerDB's own log lines. Nil silences them.
	Logger *slog.Logger `yaml:"-"`
}

const defaultDiscardRatio = 0.5

// DefaultConfig persists under path with synchronous writes and GC every
// five minutes.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: defaultDiscardRatio,
	}
}

// InMemoryConfig keeps jobs for the life of the process only.
func InMemoryConfig() Config { return Config{InMemory: true} }

func (c Config) discardRatio() float64 {
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio > 1 {
		return defaultDiscardRatio
	}
	return c.GCDiscardRatio
}

// slogAdapter routes BadgerDB's printf-style logging into slog.
type slogAdapter struct{ log *slog.Logger }

func (a slogAdapter) Errorf(f string, v ...any)   { a.log.Error(strings.TrimSpace(fmt.Sprintf(f, v...))) }
func (a slogAdapter) Warningf(f string, v ...any) { a.log.Warn(strings.TrimSpace(fmt.Sprintf(f, v...))) }
func (a slogAdapter) Infof(f string, v ...any)    { a.log.Debug(strings.TrimSpace(fmt.Sprintf(f, v...))) }
func (a slogAdapter) Debugf(f string, v ...any)   { a.log.Debug(strings.TrimSpace(fmt.Sprintf(f, v...))) }

// errNoPath is returned for a persistent store without a directory.
var errNoPath = errors.New("storage: path is required unless in_memory is set")

// badgerOptions translates cfg. Badger's own info lines are demoted to
// debug since it is chatty at startup.
func badgerOptions(cfg Config) (badger.Options, error) {
	if cfg.InMemory {
		return badger.DefaultOptions("").
			WithInMemory(true).
			WithLogger(nil), nil
	}
	if cfg.Path == "" {
		return badger.Options{}, errNoPath
	}
	if err := os.MkdirAll(cfg.Path, 0750); err != nil {
		return badger.Options{}, fmt.Errorf("storage: mkdir %s: %w", cfg.Path, err)
	}
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if cfg.Logger != nil {
		opts = opts.WithLogger(slogAdapter{log: cfg.Logger})
	}
	return opts, nil
}

// collectGarbage runs value log GC every interval until ctx ends.
func collectGarbage(ctx context.Context, db *badger.DB, interval time.Duration, ratio float64, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// Keep rewriting while badger finds files worth collecting.
		for {
			err := db.RunValueLogGC(ratio)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) && log != nil {
				log.Warn("job store GC failed", slog.String("error", err.Error()))
			}
			break
		}
	}
}
