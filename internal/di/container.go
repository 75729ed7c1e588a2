// Package di provides dependency injection configuration for the listing
// editor.
package di

import (
	"github.com/samber/do/v2"

	"github.com/rolsen/tinyclassified/internal/config"
	"github.com/rolsen/tinyclassified/internal/di/providers"
	"github.com/rolsen/tinyclassified/internal/logger"
	"github.com/rolsen/tinyclassified/internal/markup"
)

// NewContainer creates and configures the DI container with all providers.
// flags and out are the command line's values and output stream.
func NewContainer(flags config.Flags, out providers.Output) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, flags)
	do.ProvideValue(injector, out)

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideNotifier)

	// Remote layer
	do.Provide(injector, providers.ProvideRemoteClient)
	do.Provide(injector, providers.ProvideTaxonomy)

	// Editor
	do.Provide(injector, providers.ProvideConverter)
	do.Provide(injector, providers.ProvideSessionFactory)

	return injector
}

// Bootstrap initializes the core services so configuration and option errors
// surface before any command runs.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.RemoteClientHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[markup.Converter](injector); err != nil {
		return err
	}
	_, err := do.Invoke[*providers.SessionFactory](injector)
	return err
}
