// Package processor turns settled inbox events into reconciliation runs.
package processor

import (
	"path/filepath"
	"strings"

	"github.com/listenupapp/takeout-fixer/internal/archive"
)

// FileType represents the type of file detected by the classifier.
type FileType int

const (
	// FileTypeArchive is an export archive (.zip, .tgz, .tar.gz).
	FileTypeArchive FileType = iota
	// FileTypeIgnored is anything else dropped into the inbox.
	FileTypeIgnored
)

// String returns the string representation of a FileType.
func (ft FileType) String() string {
	switch ft {
	case FileTypeArchive:
		return "archive"
	case FileTypeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// classifyFile decides by extension whether an inbox file should start a
// run. Sidecars and loose images are ignored: only whole exports are
// reconciled from the inbox.
func classifyFile(path string) FileType {
	if path == "" {
		return FileTypeIgnored
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return FileTypeIgnored
	}
	if archive.IsArchive(path) {
		return FileTypeArchive
	}
	return FileTypeIgnored
}
