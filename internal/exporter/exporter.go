// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package exporter

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ga-tools/poliops-transfer/internal/catalog"
	"github.com/ga-tools/poliops-transfer/internal/sqlgen"
	"github.com/ga-tools/poliops-transfer/internal/tsv"
	"go.uber.org/zap"
)

// Querier is the part of *sql.DB the exporter needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Exporter writes the fiscal-year reports of each company to TSV files.
type Exporter struct {
	db          Querier
	reports     []catalog.Report
	dir         string
	rowsPerFile int
	logger      *zap.Logger
}

// NewExporter creates an exporter writing into dir with at most rowsPerFile
// data rows per file.
func NewExporter(db Querier, reports []catalog.Report, dir string, rowsPerFile int, logger *zap.Logger) (*Exporter, error) {
	if rowsPerFile <= 0 {
		return nil, fmt.Errorf("rows per file must be positive, got %d", rowsPerFile)
	}
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	return &Exporter{
		db:          db,
		reports:     reports,
		dir:         dir,
		rowsPerFile: rowsPerFile,
		logger:      logger,
	}, nil
}

// CreateReports runs every report for a company and returns the files written,
// in report order then page order.
func (e *Exporter) CreateReports(ctx context.Context, company catalog.Company) ([]ReportFile, error) {
	var files []ReportFile

	for _, report := range e.reports {
		query, args, err := sqlgen.ReportQuery(company, report)
		if err != nil {
			return nil, fmt.Errorf("failed to build query for %s: %w", company.Key, err)
		}

		e.logger.Debug("Querying report",
			zap.String("company", company.Key),
			zap.String("table", report.TableName),
			zap.String("query", query))

		written, err := e.exportReport(ctx, company, report, query, args)
		if err != nil {
			return nil, err
		}

		for i := range written {
			written[i].Table = report.TableName
		}
		files = append(files, written...)
	}

	return files, nil
}

func (e *Exporter) exportReport(ctx context.Context, company catalog.Company, report catalog.Report, query string, args []interface{}) ([]ReportFile, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s.%s: %w", company.DBName, report.TableName, err)
	}
	defer rows.Close()

	cursor, err := NewRowsCursor(rows)
	if err != nil {
		return nil, err
	}

	return WriteReport(e.dir, company.Key, report.Suffix, cursor, e.rowsPerFile, e.logger)
}

// WriteReport pages through cursor writing up to pageSize rows per file. Files
// are named {company}{suffix}.tsv, {company}{suffix}2.tsv, {company}{suffix}3.tsv
// and so on, each with its own header row. No file is written for an empty cursor.
func WriteReport(dir, company, suffix string, cursor Cursor, pageSize int, logger *zap.Logger) ([]ReportFile, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	header := cursor.Columns()
	var files []ReportFile

	for page := 1; ; page++ {
		rows, err := cursor.FetchMany(pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch rows for %s%s: %w", company, suffix, err)
		}
		if len(rows) == 0 {
			logger.Debug("Report exhausted",
				zap.String("company", company),
				zap.String("suffix", suffix),
				zap.Int("files", len(files)))
			break
		}

		path := filepath.Join(dir, ReportFileName(company, suffix, page))
		if err := writePage(path, header, rows); err != nil {
			return nil, err
		}

		logger.Info("Wrote report file",
			zap.String("path", path),
			zap.Int("page", page),
			zap.Int("rows", len(rows)))

		files = append(files, ReportFile{
			Path:     path,
			Company:  company,
			Page:     page,
			RowCount: len(rows),
		})
	}

	return files, nil
}

// ReportFileName returns the name of a page file. The first page carries no number.
func ReportFileName(company, suffix string, page int) string {
	seq := ""
	if page > 1 {
		seq = strconv.Itoa(page)
	}
	return company + suffix + seq + ".tsv"
}

func writePage(path string, header []string, rows [][]string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close report file: %w", cerr)
		}
	}()

	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	records = append(records, rows...)
	if err := tsv.NewWriter(file, tsv.Report).WriteAll(records); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// RowsCursor adapts *sql.Rows to Cursor.
type RowsCursor struct {
	rows    *sql.Rows
	columns []string
	dbTypes []string
	done    bool
}

// NewRowsCursor reads the column metadata of rows.
func NewRowsCursor(rows *sql.Rows) (*RowsCursor, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	dbTypes := make([]string, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			dbTypes[i] = ct.DatabaseTypeName()
		}
	}

	return &RowsCursor{rows: rows, columns: columns, dbTypes: dbTypes}, nil
}

// Columns returns the result set's column names.
func (c *RowsCursor) Columns() []string {
	return c.columns
}

// FetchMany scans up to n rows and renders their values.
func (c *RowsCursor) FetchMany(n int) ([][]string, error) {
	if c.done {
		return nil, nil
	}

	var page [][]string
	values := make([]interface{}, len(c.columns))
	dest := make([]interface{}, len(c.columns))
	for i := range values {
		dest[i] = &values[i]
	}

	for len(page) < n {
		if !c.rows.Next() {
			c.done = true
			if err := c.rows.Err(); err != nil {
				return nil, fmt.Errorf("row iteration error: %w", err)
			}
			break
		}
		if err := c.rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make([]string, len(values))
		for i, v := range values {
			record[i] = FormatValue(v, c.dbTypes[i])
		}
		page = append(page, record)
	}

	return page, nil
}
