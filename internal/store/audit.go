// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

// Audit statuses.
const (
	StatusCopied         = "copied"
	StatusFoundNotCopied = "found but not copied"
)

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Recorder leaves one audit row per check file seen.
type Recorder interface {
	RecordCopy(ctx context.Context, pathname string, dataRecords int) error
	RecordFoundNotCopied(ctx context.Context, pathname string) error
}

// AuditLog writes audit rows to a transfers table.
type AuditLog struct {
	db    *sql.DB
	table string
}

// NewAuditLog returns an AuditLog writing to table, which may be schema-qualified.
func NewAuditLog(db *sql.DB, table string) (*AuditLog, error) {
	if !tableNameRE.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}
	return &AuditLog{db: db, table: table}, nil
}

// EnsureSchema creates the audit table if it does not exist.
func (a *AuditLog) EnsureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			pathname VARCHAR(1024) NOT NULL,
			data_records INT NOT NULL,
			status VARCHAR(32) NOT NULL,
			when_processed DATETIME NOT NULL
		)`, a.table))
	if err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// RecordCopy records a file copied with dataRecords rows.
func (a *AuditLog) RecordCopy(ctx context.Context, pathname string, dataRecords int) error {
	return a.insert(ctx, pathname, dataRecords, StatusCopied)
}

// RecordFoundNotCopied records a file that was present but had no data rows.
func (a *AuditLog) RecordFoundNotCopied(ctx context.Context, pathname string) error {
	return a.insert(ctx, pathname, 0, StatusFoundNotCopied)
}

func (a *AuditLog) insert(ctx context.Context, pathname string, dataRecords int, status string) error {
	query := fmt.Sprintf(`INSERT INTO %s (pathname, data_records, status, when_processed)
		VALUES (?, ?, ?, NOW())`, a.table)
	if _, err := a.db.ExecContext(ctx, query, pathname, dataRecords, status); err != nil {
		return fmt.Errorf("failed to record %q for %s: %w", status, pathname, err)
	}
	return nil
}
