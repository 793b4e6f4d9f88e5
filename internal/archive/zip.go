package archive

import (
	"io"
	"iter"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

// Host systems in the upper byte of a zip entry's CreatorVersion whose
// external attributes carry POSIX mode bits.
const (
	creatorUnix   = 3
	creatorMacOSX = 19
)

type zipDecoder struct {
	rc   *zip.ReadCloser
	path string
}

func openZip(path string) (*zipDecoder, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeIO, "open zip archive %s", path)
	}
	return &zipDecoder{rc: rc, path: path}, nil
}

func (d *zipDecoder) Format() Format { return FormatZip }

func (d *zipDecoder) Close() error { return d.rc.Close() }

func (d *zipDecoder) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, f := range d.rc.File {
			creator := f.CreatorVersion >> 8
			hasMode := creator == creatorUnix || creator == creatorMacOSX

			entry := Entry{
				Name:    f.Name,
				IsDir:   strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir(),
				HasMode: hasMode,
				open:    func() (io.ReadCloser, error) { return f.Open() },
			}
			if hasMode {
				entry.Mode = f.Mode().Perm()
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}
