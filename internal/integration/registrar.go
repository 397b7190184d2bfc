package integration

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/buffr/internal/tool"
)

// Registrar keeps the tool registry in step with stored custom integrations.
type Registrar struct {
	store    *Store
	registry *tool.Registry
	client   *http.Client
	logger   zerolog.Logger
}

// NewRegistrar creates a Registrar. client may be nil.
func NewRegistrar(s *Store, registry *tool.Registry, client *http.Client, logger zerolog.Logger) *Registrar {
	return &Registrar{
		store:    s,
		registry: registry,
		client:   client,
		logger:   logger.With().Str("component", "integration.registrar").Logger(),
	}
}

func (r *Registrar) toolFor(c *CustomIntegration) tool.Tool {
	return tool.NewHTTPTool(tool.HTTPSpec{
		Name:        c.ToolName(),
		Description: c.Description,
		BaseURL:     c.BaseURL,
		Method:      c.Method,
		Headers:     c.Headers,
	}, r.client, r.logger)
}

// Sync registers every stored integration. It returns the number registered.
func (r *Registrar) Sync(ctx context.Context) (int, error) {
	list, err := r.store.ListIntegrations(ctx)
	if err != nil {
		return 0, err
	}
	for _, c := range list {
		r.registry.Replace(r.toolFor(c))
	}
	r.logger.Info().Int("count", len(list)).Msg("custom integrations registered")
	return len(list), nil
}

// Install registers or refreshes one integration's tool.
func (r *Registrar) Install(c *CustomIntegration) {
	r.registry.Replace(r.toolFor(c))
}

// Rename swaps the tool of prev for the tool of next.
func (r *Registrar) Rename(prev, next *CustomIntegration) {
	if prev != nil && prev.Name != next.Name {
		r.registry.Unregister(prev.ToolName())
	}
	r.Install(next)
}

// Remove unregisters an integration's tool.
func (r *Registrar) Remove(c *CustomIntegration) {
	r.registry.Unregister(c.ToolName())
}
