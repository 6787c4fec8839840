// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package fiscal runs the fiscal-year export: report files for every company,
// copied to the transfer host and optionally archived.
package fiscal

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/ga-tools/poliops-transfer/internal/catalog"
	"github.com/ga-tools/poliops-transfer/internal/exporter"
	"github.com/ga-tools/poliops-transfer/internal/remote"
	"go.uber.org/zap"
)

// ReportCreator writes the report files of one company.
type ReportCreator interface {
	CreateReports(ctx context.Context, company catalog.Company) ([]exporter.ReportFile, error)
}

// Archiver keeps a copy of a produced file under name.
type Archiver interface {
	Archive(ctx context.Context, localPath, name string) error
}

// ProcessCompanies exports every company in order and returns all files written.
func ProcessCompanies(ctx context.Context, companies []catalog.Company, exp ReportCreator, logger *zap.Logger) ([]exporter.ReportFile, error) {
	var allFiles []exporter.ReportFile

	for _, company := range companies {
		files, err := ProcessCompany(ctx, company, exp, logger)
		if err != nil {
			return nil, err
		}
		allFiles = append(allFiles, files...)
	}

	logger.Info("All companies processed",
		zap.Int("companies", len(companies)),
		zap.Int("report_files", len(allFiles)))

	return allFiles, nil
}

// ProcessCompany exports the reports of a single company.
func ProcessCompany(ctx context.Context, company catalog.Company, exp ReportCreator, logger *zap.Logger) ([]exporter.ReportFile, error) {
	logger.Info("Processing company",
		zap.String("company", company.Key),
		zap.String("database", company.DBName),
		zap.String("date_from", company.DateFrom))

	files, err := exp.CreateReports(ctx, company)
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", company.Key, err)
	}

	rows := 0
	for _, f := range files {
		rows += f.RowCount
	}
	logger.Info("Company completed",
		zap.String("company", company.Key),
		zap.Int("files", len(files)),
		zap.Int("rows", rows))

	return files, nil
}

// CopyReports puts every report file into remoteDir on the transfer host under
// its own name. An empty remoteDir means the login directory.
func CopyReports(ctx context.Context, files []exporter.ReportFile, copier remote.Copier, remoteDir string, logger *zap.Logger) error {
	for _, f := range files {
		name := filepath.Base(f.Path)
		target := name
		if remoteDir != "" {
			target = path.Join(remoteDir, name)
		}
		if err := copier.CopyFile(ctx, f.Path, target); err != nil {
			return fmt.Errorf("failed to copy %s: %w", name, err)
		}
		logger.Debug("Copied report file", zap.String("remote", target))
	}

	logger.Info("Report files copied to transfer host", zap.Int("count", len(files)))
	return nil
}

// ArchiveReports uploads each report file under its own name, which is unique
// per run. Failures are logged and skipped.
func ArchiveReports(ctx context.Context, files []exporter.ReportFile, archiver Archiver, logger *zap.Logger) int {
	archived := 0
	for _, f := range files {
		if err := archiver.Archive(ctx, f.Path, filepath.Base(f.Path)); err != nil {
			logger.Error("Failed to archive report file",
				zap.String("path", f.Path),
				zap.Error(err))
			continue
		}
		archived++
	}
	return archived
}
