// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package exporter

// Cursor is an open result set read in pages. Values are already rendered
// in the report text format.
type Cursor interface {
	Columns() []string
	// FetchMany returns up to n rows. An empty slice means the cursor is exhausted.
	FetchMany(n int) ([][]string, error)
}

// ReportFile represents one generated TSV file.
type ReportFile struct {
	Path     string
	Company  string
	Table    string
	Page     int // 1-based
	RowCount int
}
