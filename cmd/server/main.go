// Package main runs the takeout-fixer control server: the run API, the SSE
// event stream and, when configured, the inbox watcher.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/listenupapp/takeout-fixer/internal/config"
	"github.com/listenupapp/takeout-fixer/internal/di"
	"github.com/listenupapp/takeout-fixer/internal/logger"
)

func main() {
	cfg, _, err := config.Load("takeout-fixer-server", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}

	injector := di.NewContainer(cfg)

	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		_ = injector.Shutdown()
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// The container stops services in reverse dependency order: HTTP and
	// inbox first, then active runs, exiftool, SSE and finally the store.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Shutdown complete")
}
