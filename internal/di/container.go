// Package di provides dependency injection configuration for the control
// server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/takeout-fixer/internal/config"
	"github.com/listenupapp/takeout-fixer/internal/di/providers"
	"github.com/listenupapp/takeout-fixer/internal/logger"
	"github.com/listenupapp/takeout-fixer/internal/pipeline"
	"github.com/listenupapp/takeout-fixer/internal/processor"
)

// NewContainer creates and configures the DI container. The configuration
// is parsed by the command and supplied as a value.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)

	// Persistence and events
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Reconciliation
	do.Provide(injector, providers.ProvideExifTool)
	do.Provide(injector, providers.ProvidePipeline)
	do.Provide(injector, providers.ProvideRunService)

	// Inbox
	do.Provide(injector, providers.ProvideEventProcessor)
	do.Provide(injector, providers.ProvideInboxWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services. Invoking the handles starts the
// background workers they own.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SSEManagerHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.ExifToolHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*pipeline.Pipeline](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.RunServiceHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*processor.EventProcessor](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.InboxWatcherHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}
	return nil
}
