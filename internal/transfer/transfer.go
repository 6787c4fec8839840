// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package transfer fetches the check request files Poliops leaves on the
// transfer host, rewrites them for Accounting and moves the originals aside.
package transfer

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/ga-tools/poliops-transfer/internal/catalog"
	"github.com/ga-tools/poliops-transfer/internal/config"
	"github.com/ga-tools/poliops-transfer/internal/remote"
	"github.com/ga-tools/poliops-transfer/internal/store"
	"go.uber.org/zap"
)

// Archiver keeps a copy of a produced file under name.
type Archiver interface {
	Archive(ctx context.Context, localPath, name string) error
}

// Summary counts what a run did.
type Summary struct {
	Prospective int
	Copied      int
	Empty       int
	Moved       int
}

// Transfer runs one check file transfer.
type Transfer struct {
	cfg      *config.TransferConfig
	catalog  *catalog.Catalog
	shell    remote.Shell
	recorder store.Recorder
	archiver Archiver
	now      func() time.Time
	logger   *zap.Logger
}

// NewTransfer creates a transfer. The archiver may be nil.
func NewTransfer(cfg *config.TransferConfig, cat *catalog.Catalog, shell remote.Shell, recorder store.Recorder, archiver Archiver, logger *zap.Logger) *Transfer {
	return &Transfer{
		cfg:      cfg,
		catalog:  cat,
		shell:    shell,
		recorder: recorder,
		archiver: archiver,
		now:      time.Now,
		logger:   logger,
	}
}

// Run looks for each company's file, copies the non-empty ones to the host and
// the share, and moves the remote files into the done directory.
func (t *Transfer) Run(ctx context.Context) (*Summary, error) {
	specs := NameProspectiveFiles(t.cfg, t.catalog.CheckCompanies, t.now())
	summary := &Summary{Prospective: len(specs)}

	wanted, empty, err := AvailableNonEmptyFiles(ctx, t.shell, specs, t.recorder, t.logger)
	if err != nil {
		return summary, err
	}
	summary.Empty = len(empty)
	t.logger.Debug("Files wanted", zap.Int("count", len(wanted)))

	var copied []FileSpec
	if len(wanted) > 0 {
		copied, err = CopyFilesToHost(ctx, t.shell, wanted, t.catalog.FieldMappings, t.recorder, t.logger)
		if err != nil {
			return summary, fmt.Errorf("failed to copy files to host: %w", err)
		}
		if err := CopyFilesToShare(copied, t.logger); err != nil {
			return summary, fmt.Errorf("failed to copy files to share: %w", err)
		}
		summary.Copied = len(copied)
		t.archive(ctx, copied)
	}

	toMove := specs
	if !t.cfg.Remote.MoveAll {
		toMove = foundSpecs(specs, copied, empty)
	}
	if err := MoveRemoteFilesAside(ctx, t.shell, toMove, t.logger); err != nil {
		return summary, err
	}
	summary.Moved = len(toMove)

	return summary, nil
}

// archive uploads each staged file. Failures are logged; the share copy is
// already in place.
func (t *Transfer) archive(ctx context.Context, specs []FileSpec) {
	if t.archiver == nil {
		return
	}
	for _, spec := range specs {
		if err := t.archiver.Archive(ctx, spec.LocalPath, ArchiveName(spec)); err != nil {
			t.logger.Error("Failed to archive check file",
				zap.String("path", spec.LocalPath),
				zap.Error(err))
		}
	}
}

// ArchiveName is {company directory}/{file name}. Every company's file in a run
// shares the same file name.
func ArchiveName(spec FileSpec) string {
	return path.Join(spec.Company, filepath.Base(spec.LocalPath))
}

// foundSpecs keeps the specs, in their original order, that were copied or
// found empty.
func foundSpecs(specs []FileSpec, groups ...[]FileSpec) []FileSpec {
	found := make(map[string]bool)
	for _, group := range groups {
		for _, spec := range group {
			found[spec.RemotePath] = true
		}
	}

	var out []FileSpec
	for _, spec := range specs {
		if found[spec.RemotePath] {
			out = append(out, spec)
		}
	}
	return out
}
