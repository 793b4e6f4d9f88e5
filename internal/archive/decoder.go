// Package archive unpacks photo export archives (.zip, .tgz) into a working
// directory next to the archive.
package archive

import (
	"bufio"
	"bytes"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

// Format identifies an archive container.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
)

var (
	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
	gzipMagic     = []byte{0x1f, 0x8b}
)

// Entry is one member of an archive.
type Entry struct {
	// Name is the slash-separated path stored in the archive.
	Name  string
	IsDir bool
	// Mode holds the stored permission bits when HasMode is set.
	Mode    fs.FileMode
	HasMode bool

	open func() (io.ReadCloser, error)
}

// Open returns the entry's decompressed bytes. For streaming formats it is
// only valid until the iteration advances.
func (e Entry) Open() (io.ReadCloser, error) {
	return e.open()
}

// Decoder iterates the members of an opened archive.
type Decoder interface {
	Format() Format
	Entries() iter.Seq2[Entry, error]
	Close() error
}

// DetectFormat picks a format from the file name, falling back to the
// leading magic bytes.
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".tar.gz"):
		return FormatTarGz, nil
	}

	f, err := os.Open(path) //#nosec G304 -- archive path chosen by the operator
	if err != nil {
		return "", errors.Wrapf(err, errors.CodeIO, "open archive %s", path)
	}
	defer f.Close()

	head, err := bufio.NewReader(f).Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrapf(err, errors.CodeIO, "read archive %s", path)
	}
	switch {
	case bytes.HasPrefix(head, zipMagic), bytes.HasPrefix(head, zipEmptyMagic):
		return FormatZip, nil
	case bytes.HasPrefix(head, gzipMagic):
		return FormatTarGz, nil
	}
	return "", errors.Unsupportedf("unrecognised archive format: %s", filepath.Base(path))
}

// Open opens path with the decoder for its format.
func Open(path string) (Decoder, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatTarGz:
		return openTarGz(path)
	default:
		return openZip(path)
	}
}

// IsArchive reports whether path has an extension Open handles by name.
func IsArchive(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".zip") || strings.HasSuffix(lower, ".tgz") || strings.HasSuffix(lower, ".tar.gz")
}
