// Package providers contains dependency injection providers for the control
// server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/takeout-fixer/internal/config"
	"github.com/listenupapp/takeout-fixer/internal/logger"
)

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting takeout-fixer server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"inbox", cfg.Inbox.Path,
	)

	return log, nil
}
