package processor

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// determineExportKey groups the parts of one multi-part export. Takeout
// splits large exports into numbered archives:
//
//	takeout-20240102T030405Z-001.zip → takeout-20240102T030405Z
//	takeout-20240102T030405Z-002.zip → takeout-20240102T030405Z
//
// Names without a part number are their own export. The key only names a
// lock, so it is NFC-normalised: parts saved by browsers that decompose
// accented names still group with their siblings.
func determineExportKey(archivePath string) string {
	dir, base := filepath.Split(archivePath)
	stem := trimArchiveExt(base)

	i := strings.LastIndexByte(stem, '-')
	if i > 0 && isPartNumber(stem[i+1:]) {
		stem = stem[:i]
	}
	return norm.NFC.String(filepath.Join(dir, stem))
}

func trimArchiveExt(base string) string {
	lower := strings.ToLower(base)
	for _, ext := range []string{".tar.gz", ".tgz", ".zip"} {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}

// isPartNumber matches the three-digit suffix Takeout appends.
func isPartNumber(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
