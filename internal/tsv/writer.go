// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package tsv writes delimited text in the dialect the downstream accounting
// loaders were built against: minimal quoting with doubled quote characters and
// a backslash escape in front of literal escape characters.
package tsv

import (
	"bufio"
	"io"
	"strings"
)

// Dialect describes the delimiter, quote and escape characters of an output file.
type Dialect struct {
	Delimiter  rune
	Quote      rune
	Escape     rune
	Terminator string
}

// Report is the dialect of the fiscal-year report files.
var Report = Dialect{Delimiter: '\t', Quote: '"', Escape: '\\', Terminator: "\n"}

// Check is the dialect of the rewritten check request files.
var Check = Dialect{Delimiter: '\t', Quote: '|', Escape: '\\', Terminator: "\n"}

// Writer writes records using a Dialect. Like encoding/csv, output is buffered
// and callers must Flush and check Error.
type Writer struct {
	d   Dialect
	w   *bufio.Writer
	err error
}

// NewWriter returns a Writer that writes records to w.
func NewWriter(w io.Writer, d Dialect) *Writer {
	return &Writer{d: d, w: bufio.NewWriter(w)}
}

// Write writes a single record followed by the dialect's terminator.
func (w *Writer) Write(record []string) error {
	if w.err != nil {
		return w.err
	}

	var b strings.Builder
	for i, field := range record {
		if i > 0 {
			b.WriteRune(w.d.Delimiter)
		}
		b.WriteString(w.encode(field, len(record) == 1))
	}
	b.WriteString(w.d.Terminator)

	_, w.err = w.w.WriteString(b.String())
	return w.err
}

// WriteAll writes records and flushes.
func (w *Writer) WriteAll(records [][]string) error {
	for _, record := range records {
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() {
	if w.err != nil {
		return
	}
	w.err = w.w.Flush()
}

// Error reports any error that occurred during a previous Write or Flush.
func (w *Writer) Error() error {
	return w.err
}

// encode renders one field. A lone empty field is quoted so the line is not
// mistaken for a blank one.
func (w *Writer) encode(field string, only bool) string {
	if field == "" {
		if only {
			return string(w.d.Quote) + string(w.d.Quote)
		}
		return ""
	}

	quoted := false
	var b strings.Builder
	for _, c := range field {
		switch {
		case c == w.d.Quote:
			b.WriteRune(w.d.Quote)
			quoted = true
		case c == w.d.Escape:
			b.WriteRune(w.d.Escape)
		case c == w.d.Delimiter || strings.ContainsRune(w.d.Terminator, c):
			quoted = true
		}
		b.WriteRune(c)
	}

	if !quoted {
		return b.String()
	}
	return string(w.d.Quote) + b.String() + string(w.d.Quote)
}
