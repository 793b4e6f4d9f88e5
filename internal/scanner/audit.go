package scanner

import (
	"cmp"
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/takeout-fixer/internal/exif"
	"github.com/listenupapp/takeout-fixer/internal/pairing"
)

// exifExtensions are the formats whose EXIF block can be decoded in-process.
var exifExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
}

// AuditOptions configures an audit.
type AuditOptions struct {
	// Workers bounds concurrent decodes. Defaults to runtime.NumCPU().
	Workers int
}

// AuditIssue is an image the audit could not read.
type AuditIssue struct {
	Path  string
	Error string
}

// AuditReport summarises which images of an export still lack a capture date.
type AuditReport struct {
	Root        string
	Images      int
	Dated       int
	Undated     []string
	Unreadable  []AuditIssue
	Unsupported int // images in formats without an in-process decoder
	Sidecars    int
	Unpaired    int // images with no sidecar of the same key
}

// Auditor reports the embedded-date coverage of a directory.
type Auditor struct {
	walker *Walker
	logger *slog.Logger
	read   func(path string) (*exif.Embedded, error)
}

// NewAuditor creates an auditor that lists files with walker.
func NewAuditor(walker *Walker, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Auditor{walker: walker, logger: logger, read: exif.ReadEmbedded}
}

// Audit walks root, resolves pairs and decodes every JPEG or TIFF image.
// Per-image failures are collected, not returned; only a walk failure or
// cancellation ends the audit early.
func (a *Auditor) Audit(ctx context.Context, root string, opts AuditOptions) (*AuditReport, error) {
	files, err := a.walker.Collect(ctx, root)
	if err != nil {
		return nil, err
	}

	set := pairing.Resolve(files, pairing.Options{Logger: a.logger})
	report := &AuditReport{Root: root}

	var images []string
	for _, pair := range set.Sorted() {
		if pair.Sidecar != "" {
			report.Sidecars++
		}
		for _, path := range pair.Images() {
			report.Images++
			if pair.Sidecar == "" {
				report.Unpaired++
			}
			if !exifExtensions[strings.ToLower(filepath.Ext(path))] {
				report.Unsupported++
				continue
			}
			images = append(images, path)
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			embedded, err := a.read(path)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				a.logger.Debug("unreadable image", "path", path, "error", err)
				report.Unreadable = append(report.Unreadable, AuditIssue{Path: path, Error: err.Error()})
			case embedded.HasDateTime:
				report.Dated++
			default:
				report.Undated = append(report.Undated, path)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.Sort(report.Undated)
	slices.SortFunc(report.Unreadable, func(x, y AuditIssue) int { return cmp.Compare(x.Path, y.Path) })

	a.logger.Info("audit complete",
		"root", root,
		"images", report.Images,
		"dated", report.Dated,
		"undated", len(report.Undated),
		"unreadable", len(report.Unreadable))
	return report, nil
}
