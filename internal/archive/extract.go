package archive

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

// Result describes one extraction.
type Result struct {
	WorkDir string
	// Files lists every file written, in archive order.
	Files []string
	// Skipped lists entry names rejected because they would land outside
	// WorkDir.
	Skipped []string
}

// Extractor unpacks archives next to themselves.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{logger: logger}
}

// WorkDir returns the directory an archive extracts into: a sibling named
// after the archive without its archive extension. A name with nothing to
// strip gets an "_extracted" suffix so it cannot collide with the archive.
func WorkDir(archivePath string) string {
	dir, base := filepath.Split(archivePath)
	lower := strings.ToLower(base)

	name := base
	switch {
	case strings.HasSuffix(lower, ".tar.gz"):
		name = base[:len(base)-len(".tar.gz")]
	case strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".zip"):
		name = base[:len(base)-4]
	default:
		if stem, _ := splitName(base); stem != "" {
			name = stem
		}
	}
	if name == "" || name == base {
		name = base + "_extracted"
	}
	return filepath.Join(dir, name)
}

func splitName(base string) (stem, ext string) {
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return base, ""
	}
	return base[:i], base[i:]
}

// Extract writes every file entry of the archive under WorkDir(archivePath).
// Existing files are overwritten, so extracting twice is harmless. Entries
// that would escape the working directory are skipped. Failing to open the
// archive or to create the working directory is returned as a CodeIO error
// before anything is written.
func (e *Extractor) Extract(ctx context.Context, archivePath string) (*Result, error) {
	dec, err := Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	workDir := WorkDir(archivePath)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.CodeIO, "create working directory %s", workDir)
	}

	log := e.logger.With("archive", archivePath, "work_dir", workDir, "format", string(dec.Format()))
	log.Info("extracting archive")

	result := &Result{WorkDir: workDir}
	for entry, err := range dec.Entries() {
		if err != nil {
			return result, err
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if entry.IsDir {
			continue
		}

		outPath, ok := confine(workDir, entry.Name)
		if !ok {
			log.Warn("skipping entry outside working directory", "entry", entry.Name)
			result.Skipped = append(result.Skipped, entry.Name)
			continue
		}

		if err := writeEntry(entry, outPath); err != nil {
			return result, err
		}
		result.Files = append(result.Files, outPath)
		log.Debug("extracted", "path", outPath)
	}

	log.Info("extraction complete", "files", len(result.Files), "skipped", len(result.Skipped))
	return result, nil
}

// confine maps an archive entry name onto a path inside root. ok is false
// for absolute names, names climbing out with "..", and names the OS cannot
// represent.
func confine(root, name string) (string, bool) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", false
	}
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.Join(root, rel), true
}

// writeEntry streams the entry into a temporary file beside outPath and
// renames it into place, which also replaces read-only leftovers from a
// previous run.
func writeEntry(entry Entry, outPath string) error {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.CodeIO, "create directory %s", dir)
	}

	src, err := entry.Open()
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "read archive entry %s", entry.Name)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, ".extract-*")
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "create %s", outPath)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		cleanup()
		return errors.Wrapf(err, errors.CodeIO, "extract %s", entry.Name)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrapf(err, errors.CodeIO, "write %s", outPath)
	}

	mode := defaultFileMode
	if entry.HasMode {
		mode = entry.Mode
	}
	if err := setPermissions(tmpName, mode); err != nil {
		cleanup()
		return errors.Wrapf(err, errors.CodeIO, "set permissions on %s", outPath)
	}

	if err := os.Rename(tmpName, outPath); err != nil {
		cleanup()
		return errors.Wrapf(err, errors.CodeIO, "write %s", outPath)
	}
	return nil
}
