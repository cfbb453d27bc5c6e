// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"warn", LevelWarn, false},
		{"Error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "test", Output: &buf})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("visible", "rows", 12)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=visible")
	assert.Contains(t, out, "rows=12")
	assert.Contains(t, out, "service=test")
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, JSON: true, Output: &buf})
	defer logger.Close()

	logger.Debug("debug line", "cohort", "2024-01-01")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "debug line", record["msg"])
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "2024-01-01", record["cohort"])
}

func TestNew_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Quiet: true, Output: &buf})
	defer logger.Close()

	logger.Error("nothing")
	assert.Empty(t, buf.String())
}

func TestNew_LogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "watch", Quiet: true})

	logger.Info("processed", "file", "events.csv")
	require.NoError(t, logger.Close())

	name := "watch_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "processed", record["msg"])
	assert.Equal(t, "events.csv", record["file"])
	assert.Equal(t, "watch", record["service"])
}

// bufferedExporter collects entries in memory.
type bufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (e *bufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

func (e *bufferedExporter) Flush(context.Context) error { return nil }
func (e *bufferedExporter) Close() error                { return nil }

func (e *bufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]LogEntry(nil), e.entries...)
}

func TestExporter_ReceivesSlogRecords(t *testing.T) {
	exp := &bufferedExporter{}
	logger := New(Config{Level: LevelInfo, Service: "serve", Quiet: true, Exporter: exp})

	// Components log through Slog(); those records must be exported too.
	logger.Slog().With("job", "j-1").WithGroup("req").Warn("slow", "ms", 250)
	logger.Debug("below level")
	logger.Error("failed")

	entries := exp.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, LevelWarn, entries[0].Level)
	assert.Equal(t, "slow", entries[0].Message)
	assert.Equal(t, "serve", entries[0].Service)
	assert.Equal(t, "j-1", entries[0].Attrs["job"])
	assert.EqualValues(t, 250, entries[0].Attrs["req.ms"])
	assert.NotContains(t, entries[0].Attrs, "service")

	assert.Equal(t, LevelError, entries[1].Level)
	require.NoError(t, logger.Close())
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})
	defer logger.Close()

	child := logger.With("component", "worker")
	child.Info("started")
	assert.Contains(t, buf.String(), "component=worker")
}

func TestWriterExporter(t *testing.T) {
	var buf bytes.Buffer
	exp := NewWriterExporter(&buf)
	err := exp.Export(context.Background(), LogEntry{
		Timestamp: time.Date(2024, 2, 5, 9, 30, 0, 0, time.UTC),
		Level:     LevelInfo,
		Message:   "hello",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(buf.String(), "[2024-02-05T09:30:00Z] INFO: hello"))
}

func TestOpenFileExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export", "serve.log")
	exp, err := OpenFileExporter(path)
	require.NoError(t, err)

	logger := New(Config{Level: LevelInfo, Service: "serve", Quiet: true, Exporter: exp})
	logger.Info("job queued", "rows", 12)
	logger.Debug("below level")
	require.NoError(t, logger.Close())
	// Close is idempotent once the file is released.
	require.NoError(t, exp.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "INFO: job queued")
	assert.Contains(t, lines[0], "rows:12")

	// A second exporter appends instead of truncating.
	again, err := OpenFileExporter(path)
	require.NoError(t, err)
	require.NoError(t, again.Export(context.Background(), LogEntry{Level: LevelWarn, Message: "second"}))
	require.NoError(t, again.Close())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestOpenFileExporter_BadPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	_, err := OpenFileExporter(filepath.Join(blocker, "nested", "x.log"))
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}
