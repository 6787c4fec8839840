// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transfer

import (
	"path"
	"path/filepath"
	"time"

	"github.com/ga-tools/poliops-transfer/internal/catalog"
	"github.com/ga-tools/poliops-transfer/internal/config"
)

// FileNameLayout names the staged and shared copies after the run time.
const FileNameLayout = "20060102-1504"

// FileSpec carries every path one company's check file passes through.
type FileSpec struct {
	Company       string
	RemotePath    string
	RemoteOldPath string
	LocalPath     string
	SharePath     string
}

// NameProspectiveFiles returns one FileSpec per company, in company order.
// Remote paths are POSIX; local and share paths use the host separator.
func NameProspectiveFiles(cfg *config.TransferConfig, companies []catalog.CheckCompany, now time.Time) []FileSpec {
	filename := now.Format(FileNameLayout) + ".txt"

	specs := make([]FileSpec, 0, len(companies))
	for _, company := range companies {
		remoteName := "cr-" + company.Abbreviation + ".csv"
		specs = append(specs, FileSpec{
			Company:       company.DirectoryName,
			RemotePath:    path.Join(cfg.Remote.Directory, remoteName),
			RemoteOldPath: path.Join(cfg.Remote.DoneDirectory, remoteName),
			LocalPath:     filepath.Join(cfg.TempDirectory, company.DirectoryName, filename),
			SharePath:     filepath.Join(cfg.DestinationDirectory, company.DirectoryName, filename),
		})
	}
	return specs
}
