// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package rewriter turns the comma-separated check request files Poliops
// produces into the tab-delimited layout the accounting import expects.
package rewriter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ga-tools/poliops-transfer/internal/tsv"
)

// RewriteCSV reads a header-plus-rows CSV stream from in and writes it to out in
// the tsv.Check dialect. Header names found in mapping are renamed. Literal tabs
// inside values become single spaces. It returns the number of data rows written.
//
// Rows shorter than the header are padded with empty values and extra values
// beyond the header are dropped. Empty input writes nothing and returns 0.
func RewriteCSV(in io.Reader, out io.Writer, mapping map[string]string) (int, error) {
	reader := csv.NewReader(in)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}

	writer := tsv.NewWriter(out, tsv.Check)
	if err := writer.Write(RenameFields(header, mapping)); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	count := 0
	record := make([]string, len(header))
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read CSV row %d: %w", count+1, err)
		}

		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = strings.ReplaceAll(row[i], "\t", " ")
			}
		}
		if err := writer.Write(record); err != nil {
			return count, fmt.Errorf("failed to write row %d: %w", count+1, err)
		}
		count++
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return count, fmt.Errorf("failed to flush output: %w", err)
	}
	return count, nil
}

// RenameFields returns header with every name present in mapping replaced.
func RenameFields(header []string, mapping map[string]string) []string {
	renamed := make([]string, len(header))
	for i, name := range header {
		if to, ok := mapping[name]; ok {
			renamed[i] = to
		} else {
			renamed[i] = name
		}
	}
	return renamed
}
