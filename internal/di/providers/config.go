// Package providers contains dependency injection providers for the listing
// editor.
package providers

import (
	"io"

	"github.com/samber/do/v2"

	"github.com/rolsen/tinyclassified/internal/config"
	"github.com/rolsen/tinyclassified/internal/logger"
	"github.com/rolsen/tinyclassified/internal/status"
)

// Output is where command results and save indicators are written.
type Output struct {
	io.Writer
}

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	flags := do.MustInvoke[config.Flags](i)
	return config.Load(flags)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Debug("Starting listing editor",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"base_url", cfg.Remote.BaseURL,
		"emulate_json", cfg.Remote.EmulateJSON,
	)

	return log, nil
}

// ProvideNotifier provides the save indicator written to the command output.
func ProvideNotifier(i do.Injector) (status.Notifier, error) {
	out := do.MustInvoke[Output](i)
	if out.Writer == nil {
		return status.Nop{}, nil
	}
	return status.NewWriter(out.Writer), nil
}
