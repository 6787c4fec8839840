// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ga-tools/poliops-transfer/internal/remote"
	"github.com/ga-tools/poliops-transfer/internal/rewriter"
	"github.com/ga-tools/poliops-transfer/internal/store"
	"go.uber.org/zap"
)

// ParseLineCount reads the count from `wc -l` output of the form "<count> <path>".
func ParseLineCount(line string) (int, bool) {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return 0, false
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// AvailableNonEmptyFiles returns the specs whose remote file exists and holds at
// least one row past the header, and separately those that exist but do not.
// Each of the latter is audited as found but not copied.
func AvailableNonEmptyFiles(ctx context.Context, shell remote.Shell, specs []FileSpec, recorder store.Recorder, logger *zap.Logger) (wanted, empty []FileSpec, err error) {
	var present []FileSpec
	for _, spec := range specs {
		logger.Debug("Checking for remote file", zap.String("path", spec.RemotePath))
		result, err := shell.Run(ctx, "ls "+remote.QuotePath(spec.RemotePath))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list %s: %w", spec.RemotePath, err)
		}
		if result.ExitCode == 0 && len(result.Stdout) > 0 {
			present = append(present, spec)
		}
	}

	for _, spec := range present {
		result, err := shell.Run(ctx, "wc -l "+remote.QuotePath(spec.RemotePath))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to count lines of %s: %w", spec.RemotePath, err)
		}

		count, ok := 0, false
		if result.ExitCode == 0 && len(result.Stdout) > 0 {
			count, ok = ParseLineCount(result.Stdout[0])
		}
		if ok && count > 1 {
			logger.Debug("Found file with at least one record",
				zap.String("path", spec.RemotePath),
				zap.Int("lines", count))
			wanted = append(wanted, spec)
			continue
		}

		if err := recorder.RecordFoundNotCopied(ctx, spec.RemotePath); err != nil {
			return nil, nil, err
		}
		logger.Debug("Found file but it is empty",
			zap.String("path", spec.RemotePath),
			zap.Strings("wc", result.Stdout))
		empty = append(empty, spec)
	}

	return wanted, empty, nil
}

// CopyFilesToHost streams each remote file through the rewriter into its local
// staging path and audits the copy. A file whose cat fails is skipped with a
// warning and left out of the result.
func CopyFilesToHost(ctx context.Context, shell remote.Shell, specs []FileSpec, mapping map[string]string, recorder store.Recorder, logger *zap.Logger) ([]FileSpec, error) {
	var copied []FileSpec
	for _, spec := range specs {
		records, code, err := fetchAndRewrite(ctx, shell, spec, mapping)
		if err != nil {
			return copied, err
		}
		if code != 0 {
			logger.Warn("Received non-zero exit code fetching file",
				zap.String("path", spec.RemotePath),
				zap.Int("exit_code", code))
			_ = os.Remove(spec.LocalPath)
			continue
		}

		if err := recorder.RecordCopy(ctx, spec.RemotePath, records); err != nil {
			return copied, err
		}
		logger.Info("Copied check file",
			zap.String("remote", spec.RemotePath),
			zap.String("local", spec.LocalPath),
			zap.Int("records", records))
		copied = append(copied, spec)
	}
	return copied, nil
}

func fetchAndRewrite(ctx context.Context, shell remote.Shell, spec FileSpec, mapping map[string]string) (records, code int, err error) {
	if err := os.MkdirAll(filepath.Dir(spec.LocalPath), 0755); err != nil {
		return 0, 0, fmt.Errorf("failed to create staging directory: %w", err)
	}

	out, err := os.Create(spec.LocalPath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create %s: %w", spec.LocalPath, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", spec.LocalPath, cerr)
		}
	}()

	code, err = shell.Stream(ctx, "cat "+remote.QuotePath(spec.RemotePath), func(r io.Reader) error {
		n, err := rewriter.RewriteCSV(r, out, mapping)
		records = n
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch %s: %w", spec.RemotePath, err)
	}
	return records, code, nil
}

// CopyFilesToShare copies each staged file to its share path.
func CopyFilesToShare(specs []FileSpec, logger *zap.Logger) error {
	for _, spec := range specs {
		if err := copyFile(spec.LocalPath, spec.SharePath); err != nil {
			return err
		}
		logger.Debug("Copied file to share",
			zap.String("local", spec.LocalPath),
			zap.String("share", spec.SharePath))
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create share directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", dst, cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// MoveRemoteFilesAside moves each remote file into the done directory. A
// non-zero exit is logged and the remaining files are still moved.
func MoveRemoteFilesAside(ctx context.Context, shell remote.Shell, specs []FileSpec, logger *zap.Logger) error {
	for _, spec := range specs {
		command := "mv " + remote.QuotePath(spec.RemotePath) + " " + remote.QuotePath(spec.RemoteOldPath)
		logger.Info("Moving remote file aside", zap.String("command", command))

		result, err := shell.Run(ctx, command)
		if err != nil {
			return fmt.Errorf("failed to move %s: %w", spec.RemotePath, err)
		}
		if result.ExitCode != 0 {
			logger.Warn("Received non-zero exit code moving file",
				zap.String("command", command),
				zap.Int("exit_code", result.ExitCode))
		}
	}
	return nil
}
