package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/takeout-fixer/internal/config"
	"github.com/listenupapp/takeout-fixer/internal/logger"
	"github.com/listenupapp/takeout-fixer/internal/processor"
	"github.com/listenupapp/takeout-fixer/internal/watcher"
)

// ProvideEventProcessor provides the inbox event processor.
func ProvideEventProcessor(i do.Injector) (*processor.EventProcessor, error) {
	log := do.MustInvoke[*logger.Logger](i)
	runs := do.MustInvoke[*RunServiceHandle](i)

	return processor.NewEventProcessor(runs.RunService, log.Logger), nil
}

// InboxWatcherHandle wraps the inbox watcher with shutdown capability. The
// watcher is nil when no inbox is configured.
type InboxWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *InboxWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	err := h.Stop()
	<-h.done
	return err
}

// ProvideInboxWatcher watches the configured inbox and feeds settled
// archives to the event processor.
func ProvideInboxWatcher(i do.Injector) (*InboxWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	eventProcessor := do.MustInvoke[*processor.EventProcessor](i)

	if cfg.Inbox.Path == "" {
		log.Info("No inbox configured")
		return &InboxWatcherHandle{}, nil
	}

	w, err := watcher.New(log.Logger, watcher.Options{
		SettleDelay:  cfg.Inbox.SettleDelay,
		EmitExisting: true,
	})
	if err != nil {
		return nil, err
	}
	if err := w.Watch(cfg.Inbox.Path); err != nil {
		_ = w.Stop()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		if err := w.Start(ctx); err != nil {
			log.Error("Inbox watcher error", "error", err)
		}
	}()

	go func() {
		for {
			select {
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				log.Warn("inbox watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer close(done)
		eventProcessor.Run(ctx, w.Events())
	}()

	log.Info("Inbox watcher started", "path", cfg.Inbox.Path)

	return &InboxWatcherHandle{
		Watcher: w,
		cancel:  cancel,
		done:    done,
	}, nil
}
