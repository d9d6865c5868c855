package router

import (
	"errors"
	"fmt"

	"github.com/prepai/prepai/pkg/config"
)

// ErrNoProviders is returned when no upstream provider is configured.
var ErrNoProviders = errors.New("no providers configured")

// Route represents a resolved provider and upstream model to try.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

// Router resolves requested model names to ordered provider+model chains.
type Router struct {
	providers map[string]config.ProviderConfig
	fallback  config.ProviderConfig
	routes    map[string][]config.RouteTarget
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	r := &Router{
		providers: make(map[string]config.ProviderConfig, len(cfg.Providers)),
		routes:    make(map[string][]config.RouteTarget, len(cfg.Router.Routes)),
	}
	for i, p := range cfg.Providers {
		if i == 0 {
			r.fallback = p
		}
		r.providers[p.Name] = p
	}
	for _, route := range cfg.Router.Routes {
		r.routes[route.Model] = route.Targets
	}
	return r
}

// Resolve returns an ordered list of routes for the requested model.
// If the model matches a configured route, the route's targets are returned.
// Otherwise, the first provider is used with the original model name.
func (r *Router) Resolve(requestedModel string) ([]Route, error) {
	if len(r.providers) == 0 {
		return nil, ErrNoProviders
	}

	targets, ok := r.routes[requestedModel]
	if !ok {
		return []Route{{Provider: r.fallback, Model: requestedModel}}, nil
	}

	var routes []Route
	for _, target := range targets {
		provider, ok := r.providers[target.Provider]
		if !ok {
			continue // skip unknown providers
		}
		model := target.Model
		if model == "" {
			model = requestedModel
		}
		routes = append(routes, Route{Provider: provider, Model: model})
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("route %q: all providers unknown", requestedModel)
	}
	return routes, nil
}
