package archive

import (
	"archive/tar"
	"io"
	"io/fs"
	"iter"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

type tarGzDecoder struct {
	f    *os.File
	gz   *gzip.Reader
	path string
}

func openTarGz(path string) (*tarGzDecoder, error) {
	f, err := os.Open(path) //#nosec G304 -- archive path chosen by the operator
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeIO, "open archive %s", path)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, errors.CodeIO, "open gzip stream %s", path)
	}
	return &tarGzDecoder{f: f, gz: gz, path: path}, nil
}

func (d *tarGzDecoder) Format() Format { return FormatTarGz }

func (d *tarGzDecoder) Close() error {
	return errors.Join(d.gz.Close(), d.f.Close())
}

// Entries yields regular files and directories. Links and device nodes are
// not reproduced.
func (d *tarGzDecoder) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		tr := tar.NewReader(d.gz)
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Entry{}, errors.Wrapf(err, errors.CodeIO, "read tar archive %s", d.path))
				return
			}

			var isDir bool
			switch hdr.Typeflag {
			case tar.TypeDir:
				isDir = true
			case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // old writers still emit TypeRegA
			default:
				continue
			}

			entry := Entry{
				Name:    hdr.Name,
				IsDir:   isDir,
				Mode:    fs.FileMode(hdr.Mode).Perm(),
				HasMode: true,
				open:    func() (io.ReadCloser, error) { return io.NopCloser(tr), nil },
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}
