package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/takeout-fixer/internal/archive"
	"github.com/listenupapp/takeout-fixer/internal/config"
	"github.com/listenupapp/takeout-fixer/internal/exif"
	"github.com/listenupapp/takeout-fixer/internal/logger"
	"github.com/listenupapp/takeout-fixer/internal/pipeline"
	"github.com/listenupapp/takeout-fixer/internal/scanner"
	"github.com/listenupapp/takeout-fixer/internal/service"
	"github.com/listenupapp/takeout-fixer/internal/sse"
)

// ExifToolHandle wraps the long-running exiftool process.
type ExifToolHandle struct {
	*exif.ExifTool
}

// Shutdown implements do.Shutdownable.
func (h *ExifToolHandle) Shutdown() error {
	return h.Close()
}

// ProvideExifTool starts exiftool in -stay_open mode.
func ProvideExifTool(i do.Injector) (*ExifToolHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	et, err := exif.StartExifTool(cfg.ExifTool.Path, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("exiftool started", "binary", cfg.ExifTool.Path)
	return &ExifToolHandle{ExifTool: et}, nil
}

// ProvidePipeline provides the reconciliation pipeline. Runs are recorded
// in the store and their progress is broadcast over SSE.
func ProvidePipeline(i do.Injector) (*pipeline.Pipeline, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	exifHandle := do.MustInvoke[*ExifToolHandle](i)

	return pipeline.New(pipeline.Options{
		Extractor:     archive.NewExtractor(log.Logger),
		Walker:        scanner.NewWalker(log.Logger, scanner.WalkOptions{SkipHidden: cfg.Pipeline.SkipHidden}),
		Applier:       exif.NewApplier(exifHandle.ExifTool, log.Logger),
		Recorder:      storeHandle.Store,
		Logger:        log.Logger,
		SidecarPolicy: cfg.Pipeline.SidecarPolicy,
		OnProgress: func(runID string, p *pipeline.Progress) {
			sseHandle.Emit(sse.NewRunProgressEvent(runID, sse.RunProgressEventData{
				Phase:       p.Phase,
				Current:     p.Current,
				Total:       p.Total,
				CurrentItem: p.CurrentItem,
			}))
		},
	}), nil
}

// RunServiceHandle wraps the run service so active runs are canceled and
// recorded on shutdown.
type RunServiceHandle struct {
	*service.RunService
}

// Shutdown implements do.Shutdownable.
func (h *RunServiceHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.RunService.Shutdown(ctx)
}

// ProvideRunService provides the run service.
func ProvideRunService(i do.Injector) (*RunServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	p := do.MustInvoke[*pipeline.Pipeline](i)

	svc := service.NewRunService(p, storeHandle.Store, sseHandle.Manager, log.Logger, service.RunServiceOptions{
		AutoSkip: cfg.Pipeline.AutoSkip,
	})
	return &RunServiceHandle{RunService: svc}, nil
}
