//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"

	"tokcache/internal"
	"tokcache/internal/controllers"
	"tokcache/internal/providers"
	"tokcache/internal/scraper"
	"tokcache/internal/services"
	"tokcache/internal/state"
	"tokcache/internal/storage"
	"tokcache/internal/structures"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, func(), error) {

	wire.Build(
		providers.NewConfigProvider,
		providers.NewLogProvider,
		providers.NewMetricsProvider,
		providers.NewInstrumentedCacheProvider,

		storage.NewStore,
		wire.Bind(new(services.RecordStore), new(storage.Store)),
		wire.Bind(new(state.RecordCounter), new(storage.Store)),
		state.NewMemoryStore,
		wire.Bind(new(state.SnapshotStore), new(*state.MemoryStore)),
		storage.NewFetchStateStore,

		scraper.NewApifyClient,
		services.NewCooldownGate,
		services.NewSyncService,

		state.NewZstdCompressor,
		state.ProvideFileManager,
		state.NewScheduler,

		controllers.NewApiController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil, nil
}
