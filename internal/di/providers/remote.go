package providers

import (
	"github.com/samber/do/v2"

	"github.com/rolsen/tinyclassified/internal/config"
	"github.com/rolsen/tinyclassified/internal/logger"
	"github.com/rolsen/tinyclassified/internal/remote"
	"github.com/rolsen/tinyclassified/internal/taxonomy"
)

// RemoteClientHandle wraps the backend client with shutdown capability.
type RemoteClientHandle struct {
	*remote.Client
}

// Shutdown implements do.Shutdowner.
func (h *RemoteClientHandle) Shutdown() {
	h.Client.Close()
}

// ProvideRemoteClient provides the listing backend client.
func ProvideRemoteClient(i do.Injector) (*RemoteClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client, err := remote.New(remote.Options{
		BaseURL:           cfg.Remote.BaseURL,
		EmulateJSON:       cfg.Remote.EmulateJSON,
		UserAgent:         cfg.Remote.UserAgent,
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		Burst:             cfg.Remote.RequestBurst,
		Logger:            log.WithComponent("remote"),
	})
	if err != nil {
		return nil, err
	}

	log.Debug("Remote client initialized", "base_url", cfg.Remote.BaseURL)
	return &RemoteClientHandle{Client: client}, nil
}

// ProvideTaxonomy provides the category taxonomy. It is fetched lazily by
// the first session that loads.
func ProvideTaxonomy(i do.Injector) (*taxonomy.Taxonomy, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*RemoteClientHandle](i)

	return taxonomy.New(taxonomy.Options{
		Transport: client.Client,
		Path:      cfg.Remote.CategoriesPath,
		Logger:    log.WithComponent("taxonomy"),
	}), nil
}
