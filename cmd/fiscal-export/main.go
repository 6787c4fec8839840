// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ga-tools/poliops-transfer/internal/catalog"
	"github.com/ga-tools/poliops-transfer/internal/config"
	"github.com/ga-tools/poliops-transfer/internal/exporter"
	"github.com/ga-tools/poliops-transfer/internal/fiscal"
	fislog "github.com/ga-tools/poliops-transfer/internal/log"
	"github.com/ga-tools/poliops-transfer/internal/remote"
	"github.com/ga-tools/poliops-transfer/internal/s3"
	"github.com/ga-tools/poliops-transfer/internal/store"
	"github.com/ga-tools/poliops-transfer/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const dbTimeoutSeconds = 30

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, config.ErrMalformed) {
			fmt.Fprint(os.Stderr, config.ExportUsage)
		} else {
			fmt.Fprintf(os.Stderr, "fiscal-export: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "fiscal-export <config.ini>",
		Short: "Copy Great Plains fiscal-year data to the transfer host for retrieval by Poliops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], debug)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "set the logging level to DEBUG")
	cmd.Flags().SetNormalizeFunc(debugAlias)

	return cmd
}

// debugAlias accepts --debugging for --debug.
func debugAlias(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "debugging" {
		name = "debug"
	}
	return pflag.NormalizedName(name)
}

func run(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.LoadExportConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := fislog.NewLogger(cfg.LogDirectory, "fiscal-export", debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Debug("Configuration loaded",
		zap.String("local_directory", cfg.LocalDirectory),
		zap.String("remote_host", cfg.Remote.Host),
		zap.String("remote_user", cfg.Remote.User),
		zap.String("database_host", cfg.Database.Host),
		zap.Int("rows_per_file", cfg.RowsPerFile))

	files, err := export(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to export reports", zap.Error(err))
		return err
	}

	opts, err := remote.OptionsFrom(cfg.Remote)
	if err != nil {
		return err
	}
	client, err := remote.Dial(ctx, opts, logger)
	if err != nil {
		logger.Error("Failed to connect to transfer host", zap.Error(err))
		return err
	}
	defer client.Close()

	if err := fiscal.CopyReports(ctx, files, client, cfg.Remote.Directory, logger); err != nil {
		logger.Error("Failed to copy reports", zap.Error(err))
		return err
	}

	archived := 0
	if cfg.S3.Enabled() {
		uploader, err := s3.NewUploader(ctx, cfg.S3, logger)
		if err != nil {
			logger.Error("Failed to create S3 uploader", zap.Error(err))
			return err
		}
		archived = fiscal.ArchiveReports(ctx, files, uploader, logger)
	}

	totalRows := 0
	for _, f := range files {
		totalRows += f.RowCount
	}

	logger.Info("Fiscal-year export completed",
		zap.Int("files", len(files)),
		zap.Int("rows", totalRows),
		zap.Int("archived", archived))

	return nil
}

func export(ctx context.Context, cfg *config.ExportConfig, logger *zap.Logger) ([]exporter.ReportFile, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	password, err := util.ResolvePassword(ctx, cfg.Database.Password, cfg.Database.Secret, cfg.Database.Region)
	if err != nil {
		return nil, err
	}
	db := cfg.Database
	db.Password = password

	source, err := store.NewSourceClient(db, dbTimeoutSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", db.Host, err)
	}
	defer source.Close()
	logger.Info("Connected to source database",
		zap.String("client", source.Name()),
		zap.String("host", db.Host))

	if err := os.MkdirAll(cfg.LocalDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	exp, err := exporter.NewExporter(source.GetDB(), cat.Reports, cfg.LocalDirectory, cfg.RowsPerFile, logger)
	if err != nil {
		return nil, err
	}

	return fiscal.ProcessCompanies(ctx, cat.Companies, exp, logger)
}
