// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadCSV decodes records from a CSV stream with a header row.
//
// Description:
//
//	Column names are matched case-insensitively after trimming, in any
//	order; extra columns are ignored. Short rows yield empty fields, which
//	validation then rejects. More than MaxRows data rows is an error.
//
// Outputs:
//   - []RawRecord: Data rows in file order.
//   - error: ErrEmptyData, ErrMissingColumns, ErrTooManyRows or a decode
//     error.
func ReadCSV(r io.Reader) ([]RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyData
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	field := func(rec []string, col string) string {
		i := index[col]
		if i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	records := make([]RawRecord, 0, 256)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(records)+headerRow+1, err)
		}
		records = append(records, RawRecord{
			UserID:     field(rec, ColumnUserID),
			SignupDate: field(rec, ColumnSignupDate),
			EventDate:  field(rec, ColumnEventDate),
		})
		if err := ValidateRowCount(len(records)); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// ReadCSVFile opens path and decodes it with ReadCSV.
func ReadCSVFile(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV encodes records with the standard header.
func WriteCSV(w io.Writer, records []RawRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RequiredColumns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.UserID, r.SignupDate, r.EventDate}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
