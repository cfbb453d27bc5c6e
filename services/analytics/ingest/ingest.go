// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest validates raw signup/event records before analysis.
//
// The analytics engines assume clean input: a trimmed non-empty user ID,
// real calendar dates that are not in the future, and a signup date on or
// before the event date. This package enforces that contract, reports
// per-row problems by stable code and caps submissions at MaxRows.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/go-openapi/strfmt"
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants and Errors
// =============================================================================

const (
	// MaxRows is the hard cap of records per submission.
	MaxRows = 10000

	// FewUsersThreshold triggers the FEW_USERS warning below this many users.
	FewUsersThreshold = 10

	// headerRow is the 1-based line number of the CSV header; data rows
	// are reported as index + headerRow + 1.
	headerRow = 1
)

// Required column names.
const (
	ColumnUserID     = "user_id"
	ColumnSignupDate = "signup_date"
	ColumnEventDate  = "event_date"
)

// RequiredColumns lists the columns every submission must carry.
var RequiredColumns = []string{ColumnUserID, ColumnSignupDate, ColumnEventDate}

var (
	// ErrTooManyRows indicates a submission above MaxRows.
	ErrTooManyRows = errors.New("too many rows")

	// ErrMissingColumns indicates a header without a required column.
	ErrMissingColumns = errors.New("missing required columns")

	// ErrEmptyData indicates a submission without data rows.
	ErrEmptyData = errors.New("data is empty")
)

// ErrorCode identifies one row problem.
type ErrorCode string

const (
	CodeEmptyData         ErrorCode = "EMPTY_DATA"
	CodeMissingUserID     ErrorCode = "MISSING_USER_ID"
	CodeInvalidSignupDate ErrorCode = "INVALID_SIGNUP_DATE"
	CodeFutureSignupDate  ErrorCode = "FUTURE_SIGNUP_DATE"
	CodeInvalidEventDate  ErrorCode = "INVALID_EVENT_DATE"
	CodeFutureEventDate   ErrorCode = "FUTURE_EVENT_DATE"
	CodeEventBeforeSignup ErrorCode = "EVENT_BEFORE_SIGNUP"
)

// WarningCode identifies a data-set level concern.
type WarningCode string

const (
	WarnFewUsers           WarningCode = "FEW_USERS"
	WarnSingleUser         WarningCode = "SINGLE_USER"
	WarnInconsistentSignup WarningCode = "INCONSISTENT_SIGNUP"
)

// =============================================================================
// Types
// =============================================================================

// RawRecord is one undecoded input row.
type RawRecord struct {
	UserID     string `json:"user_id" validate:"required"`
	SignupDate string `json:"signup_date" validate:"required,isodate"`
	EventDate  string `json:"event_date" validate:"required,isodate"`
}

// RowError lists the problems of one input row. Row is the 1-based line
// number in the source file, header included. Row 0 marks a problem of
// the whole submission.
type RowError struct {
	Row   int         `json:"row"`
	Codes []ErrorCode `json:"codes"`
}

// Warning is a data-set level concern that does not reject rows.
type Warning struct {
	Code  WarningCode `json:"code"`
	Users int         `json:"users"`
}

// Stats counts rows and users.
type Stats struct {
	Total       int `json:"total"`
	Valid       int `json:"valid"`
	Invalid     int `json:"invalid"`
	UniqueUsers int `json:"uniqueUsers"`
}

// Result is the outcome of ValidateRecords.
type Result struct {
	// Valid is true when no row was rejected.
	Valid    bool              `json:"valid"`
	Rows     []cohort.EventRow `json:"rows"`
	Errors   []RowError        `json:"errors"`
	Warnings []Warning         `json:"warnings"`
	Stats    Stats             `json:"stats"`
}

// Usable reports whether at least one row survived validation.
func (r *Result) Usable() bool {
	return len(r.Rows) > 0
}

// =============================================================================
// Validator
// =============================================================================

var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New()
	_ = recordValidate.RegisterValidation("isodate", validateISODate)
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := ParseDate(fl.Field().String())
	return err == nil
}

// ParseDate parses an ISO 8601 calendar date or date-time and returns its
// calendar day at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	var d strfmt.Date
	if err := d.UnmarshalText([]byte(s)); err == nil {
		return cohort.DateOf(time.Time(d)), nil
	}
	dt, err := strfmt.ParseDateTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return cohort.DateOf(time.Time(dt)), nil
}

// ValidateRowCount rejects submissions above MaxRows.
func ValidateRowCount(n int) error {
	if n > MaxRows {
		return fmt.Errorf("%w: %d rows, at most %d supported", ErrTooManyRows, n, MaxRows)
	}
	return nil
}

// ValidateRecords checks every record against the input contract.
//
// Description:
//
//	Rejected rows are excluded from Rows and reported in Errors. Warnings
//	are only computed when at least one row is valid. Users whose rows
//	disagree on signup date are counted in INCONSISTENT_SIGNUP; cohort
//	assignment still uses their first row.
//
// Inputs:
//   - records: Raw rows in file order.
//   - today: Dates after this calendar day are rejected.
//
// Outputs:
//   - Result: Never carries nil slices.
func ValidateRecords(records []RawRecord, today time.Time) Result {
	res := Result{
		Rows:     []cohort.EventRow{},
		Errors:   []RowError{},
		Warnings: []Warning{},
	}
	if len(records) == 0 {
		res.Errors = append(res.Errors, RowError{Codes: []ErrorCode{CodeEmptyData}})
		return res
	}

	today = cohort.DateOf(today)
	users := make(map[string]struct{})
	signups := make(map[string]time.Time)
	inconsistent := make(map[string]struct{})

	for i, rec := range records {
		rec.UserID = strings.TrimSpace(rec.UserID)
		if rec.UserID != "" {
			users[rec.UserID] = struct{}{}
		}

		row, codes := checkRecord(rec, today)
		if len(codes) > 0 {
			res.Errors = append(res.Errors, RowError{Row: i + headerRow + 1, Codes: codes})
			continue
		}

		if first, ok := signups[row.UserID]; !ok {
			signups[row.UserID] = row.SignupDate
		} else if !first.Equal(row.SignupDate) {
			inconsistent[row.UserID] = struct{}{}
		}
		res.Rows = append(res.Rows, row)
	}

	res.Stats = Stats{
		Total:       len(records),
		Valid:       len(res.Rows),
		Invalid:     len(records) - len(res.Rows),
		UniqueUsers: len(users),
	}

	if len(res.Rows) > 0 {
		if len(users) < FewUsersThreshold {
			res.Warnings = append(res.Warnings, Warning{Code: WarnFewUsers, Users: len(users)})
		}
		if len(users) == 1 {
			res.Warnings = append(res.Warnings, Warning{Code: WarnSingleUser, Users: 1})
		}
		if len(inconsistent) > 0 {
			res.Warnings = append(res.Warnings, Warning{Code: WarnInconsistentSignup, Users: len(inconsistent)})
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// checkRecord validates one trimmed record.
func checkRecord(rec RawRecord, today time.Time) (cohort.EventRow, []ErrorCode) {
	var codes []ErrorCode

	if err := recordValidate.Struct(rec); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				switch fe.Field() {
				case "UserID":
					codes = append(codes, CodeMissingUserID)
				case "SignupDate":
					codes = append(codes, CodeInvalidSignupDate)
				case "EventDate":
					codes = append(codes, CodeInvalidEventDate)
				}
			}
		}
	}

	signup, signupErr := ParseDate(rec.SignupDate)
	event, eventErr := ParseDate(rec.EventDate)
	if signupErr == nil && signup.After(today) {
		codes = append(codes, CodeFutureSignupDate)
	}
	if eventErr == nil && event.After(today) {
		codes = append(codes, CodeFutureEventDate)
	}
	if signupErr == nil && eventErr == nil && signup.After(event) {
		codes = append(codes, CodeEventBeforeSignup)
	}

	if len(codes) > 0 {
		return cohort.EventRow{}, codes
	}
	return cohort.EventRow{UserID: rec.UserID, SignupDate: signup, EventDate: event}, nil
}
