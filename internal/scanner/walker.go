// Package scanner discovers the plain files of an extracted export and
// reports which images still lack an embedded capture date.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	domainerrors "github.com/listenupapp/takeout-fixer/internal/errors"
)

// WalkOptions configures a Walker.
type WalkOptions struct {
	// SkipHidden drops dot-files and does not descend into dot-directories.
	SkipHidden bool
}

// Walker traverses the filesystem and discovers files.
type Walker struct {
	logger *slog.Logger
	opts   WalkOptions
}

// NewWalker creates a new walker.
func NewWalker(logger *slog.Logger, opts WalkOptions) *Walker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Walker{logger: logger, opts: opts}
}

// WalkResult is one discovered file, or a terminal error.
type WalkResult struct {
	Error   error
	Path    string
	RelPath string
	Size    int64
}

// Walk streams every regular file under rootPath. Directories are traversed
// but never sent; symlinks and other special files are ignored. An unreadable
// root yields a single result carrying a CodeIO error. Unreadable
// subdirectories are logged and skipped. The channel closes when the walk
// completes or ctx is canceled.
func (w *Walker) Walk(ctx context.Context, rootPath string) <-chan WalkResult {
	results := make(chan WalkResult, 100)

	go func() {
		defer close(results)

		err := filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				if path == rootPath {
					return err
				}
				w.logger.Warn("skipping unreadable entry", "path", path, "error", err)
				return nil
			}

			if path == rootPath {
				if !d.IsDir() {
					return domainerrors.IO("not a directory")
				}
				return nil
			}

			if w.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() {
				return nil
			}

			var size int64
			if info, err := d.Info(); err == nil {
				size = info.Size()
			}

			relPath, err := filepath.Rel(rootPath, path)
			if err != nil {
				relPath = path
			}

			select {
			case results <- WalkResult{Path: path, RelPath: relPath, Size: size}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})

		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("walk failed", "root", rootPath, "error", err)
			select {
			case results <- WalkResult{Error: domainerrors.Wrapf(err, domainerrors.CodeIO, "walk %s", rootPath)}:
			case <-ctx.Done():
			}
		}
	}()

	return results
}

// Collect drains Walk into a set of paths.
func (w *Walker) Collect(ctx context.Context, rootPath string) (map[string]struct{}, error) {
	files := make(map[string]struct{})
	for result := range w.Walk(ctx, rootPath) {
		if result.Error != nil {
			return nil, result.Error
		}
		files[result.Path] = struct{}{}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, nil
}
