//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/cory-johannsen/dicecrawl/internal/config"
)

var appSet = wire.NewSet(
	provideLogger,
	provideRoller,
	provideCatalog,
	provideNarrator,
	provideSyncService,
	provideHub,
	provideJournal,
	provideDeps,
	provideManager,
	provideGameHandler,
	provideAcceptor,
	provideLifecycle,
	provideApp,
)

func initializeApp(ctx context.Context, cfg config.Config) (*App, func(), error) {
	wire.Build(appSet)
	return nil, nil, nil
}
