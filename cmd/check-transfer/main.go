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
	fislog "github.com/ga-tools/poliops-transfer/internal/log"
	"github.com/ga-tools/poliops-transfer/internal/remote"
	"github.com/ga-tools/poliops-transfer/internal/s3"
	"github.com/ga-tools/poliops-transfer/internal/store"
	"github.com/ga-tools/poliops-transfer/internal/transfer"
	"github.com/ga-tools/poliops-transfer/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const dbTimeoutSeconds = 10

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, config.ErrMalformed) {
			fmt.Fprint(os.Stderr, config.TransferUsage)
		} else {
			fmt.Fprintf(os.Stderr, "check-transfer: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "check-transfer <config.ini>",
		Short: "Fetch Poliops check request files from the transfer host for Accounting",
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
	cfg, err := config.LoadTransferConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := fislog.NewLogger(cfg.LogDirectory, "check-transfer", debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("Failed to load catalog", zap.Error(err))
		return err
	}

	audit, closeAudit, err := openAudit(ctx, cfg.Audit, cfg.EnsureAuditSchema)
	if err != nil {
		logger.Error("Failed to open audit log", zap.Error(err))
		return err
	}
	defer closeAudit()

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

	var archiver transfer.Archiver
	if cfg.S3.Enabled() {
		uploader, err := s3.NewUploader(ctx, cfg.S3, logger)
		if err != nil {
			logger.Error("Failed to create S3 uploader", zap.Error(err))
			return err
		}
		archiver = uploader
	}

	summary, err := transfer.NewTransfer(cfg, cat, client, audit, archiver, logger).Run(ctx)
	if err != nil {
		logger.Error("Check transfer failed", zap.Error(err))
		return err
	}

	logger.Info("Check transfer completed",
		zap.Int("prospective", summary.Prospective),
		zap.Int("copied", summary.Copied),
		zap.Int("empty", summary.Empty),
		zap.Int("moved", summary.Moved))

	return nil
}

func openAudit(ctx context.Context, db config.Database, ensureSchema bool) (*store.AuditLog, func(), error) {
	password, err := util.ResolvePassword(ctx, db.Password, db.Secret, db.Region)
	if err != nil {
		return nil, nil, err
	}
	db.Password = password

	client, err := store.NewAuditClient(db, dbTimeoutSeconds)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	audit, err := store.NewAuditLog(client.GetDB(), db.Table)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("%s: %w", client.Name(), err)
	}
	if ensureSchema {
		if err := audit.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("%s: %w", client.Name(), err)
		}
	}

	return audit, func() { client.Close() }, nil
}
