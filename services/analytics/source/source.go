// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package source loads raw signup/event records from a SQL table.
//
// The table must expose user_id, signup_date and event_date columns.
// MySQL/MariaDB and PostgreSQL are supported. Rows come back as
// ingest.RawRecord so they pass through the same validation as CSV input.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/CohortIQ/pkg/validation"
	"github.com/AleutianAI/CohortIQ/services/analytics/ingest"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Driver names a supported database.
type Driver string

const (
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
)

var (
	// ErrUnsupportedDriver indicates a driver other than mysql or postgres.
	ErrUnsupportedDriver = errors.New("unsupported driver")

	// ErrNoDSN indicates a missing connection string.
	ErrNoDSN = errors.New("dsn is required")
)

// Config locates the event table.
type Config struct {
	Driver Driver `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// Enabled reports whether a DSN is configured.
func (c Config) Enabled() bool {
	return c.DSN != ""
}

// Source reads event rows from one table.
//
// Thread Safety: Safe for concurrent use.
type Source struct {
	db     *sql.DB
	driver Driver
	table  string
}

// Open connects to the configured database.
func Open(cfg Config) (*Source, error) {
	if cfg.DSN == "" {
		return nil, ErrNoDSN
	}
	if cfg.Driver != DriverMySQL && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
	dsn := cfg.DSN
	if cfg.Driver == DriverMySQL {
		var err error
		if dsn, err = toMySQLDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(string(cfg.Driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	src, err := New(db, cfg.Driver, cfg.Table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return src, nil
}

// New wraps an open database handle.
func New(db *sql.DB, driver Driver, table string) (*Source, error) {
	if driver != DriverMySQL && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	table, err := validation.SanitizeIdentifier(table)
	if err != nil {
		return nil, fmt.Errorf("invalid table: %w", err)
	}
	return &Source{db: db, driver: driver, table: table}, nil
}

// Close closes the database handle.
func (s *Source) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// toMySQLDSN converts mysql:// and mariadb:// URLs into the driver's DSN
// format. Anything else passes through unchanged.
func toMySQLDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "mariadb://") && !strings.HasPrefix(dsn, "mysql://") {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}

	cfg := mysql.NewConfig()
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.User == "" || cfg.Addr == "" || cfg.DBName == "" {
		return "", errors.New("incomplete dsn: user, host and database are required")
	}
	return cfg.FormatDSN(), nil
}

// quoteTable quotes each part of a validated, possibly schema-qualified
// table name.
func quoteTable(driver Driver, table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		if driver == DriverPostgres {
			parts[i] = pq.QuoteIdentifier(p)
		} else {
			parts[i] = "`" + p + "`"
		}
	}
	return strings.Join(parts, ".")
}

// query builds the SELECT for the source. A non-zero since adds a lower
// bound on event_date. One row over ingest.MaxRows is requested so an
// oversized table is detected instead of silently truncated.
func (s *Source) query(since time.Time) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, %s, %s FROM %s",
		ingest.ColumnUserID, ingest.ColumnSignupDate, ingest.ColumnEventDate,
		quoteTable(s.driver, s.table))

	var args []any
	if !since.IsZero() {
		placeholder := "?"
		if s.driver == DriverPostgres {
			placeholder = "$1"
		}
		fmt.Fprintf(&b, " WHERE %s >= %s", ingest.ColumnEventDate, placeholder)
		args = append(args, since.UTC())
	}
	fmt.Fprintf(&b, " ORDER BY %s, %s, %s LIMIT %d",
		ingest.ColumnSignupDate, ingest.ColumnUserID, ingest.ColumnEventDate, ingest.MaxRows+1)
	return b.String(), args
}

// Load reads raw records, optionally only events on or after since.
//
// Outputs:
//   - []ingest.RawRecord: Rows in (signup, user, event) order. Dates are
//     rendered as text for ingest.ValidateRecords.
//   - error: ingest.ErrTooManyRows above the row cap, or a query error.
func (s *Source) Load(ctx context.Context, since time.Time) ([]ingest.RawRecord, error) {
	q, args := s.query(since)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	records := make([]ingest.RawRecord, 0, 256)
	for rows.Next() {
		var user, signup, event sql.NullString
		if err := rows.Scan(&user, &signup, &event); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		records = append(records, ingest.RawRecord{
			UserID:     user.String,
			SignupDate: signup.String,
			EventDate:  event.String,
		})
		if err := ingest.ValidateRowCount(len(records)); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.table, err)
	}
	return records, nil
}
