//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"north-backend/application/limits"
	"north-backend/application/ports"
	"north-backend/application/research"
	"north-backend/application/trees"
	"north-backend/infrastructure/config"
	"north-backend/interfaces/http/rest"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideTracing,
	ProvideStores,
	ProvideTreeRepository,
	ProvideUsageStore,
	ProvidePinger,
	ProvideEventPublisher,
	ProvideCompleter,
	ProvideBrowser,
	ProvideAggregator,
	ProvideLimitSet,
	ProvideWatcher,
	ProvideTreeService,
	ProvideTracker,
	ProvideDecomposition,
	ProvideRefinement,
	research.NewService,
	limits.NewService,
	ProvideErrorHandler,
	ProvideAuthConfig,
	ProvideRouter,
	wire.Bind(new(ports.TreeStore), new(*trees.Service)),
	wire.Bind(new(research.Store), new(*trees.Service)),
	wire.Bind(new(limits.CapsSource), new(*config.LimitSet)),
	wire.Struct(new(rest.Services), "*"),
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
