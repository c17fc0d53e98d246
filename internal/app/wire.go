//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"voxmeter/internal/app/metrics"
	"voxmeter/internal/app/pipeline"
	"voxmeter/internal/config"
)

var appSet = wire.NewSet(
	provideRepository,
	provideObjectStore,
	provideTool,
	provideRegistry,
	provideLedger,
	provideFiles,
	provideTracker,
	provideRedis,
	provideQueue,
	metrics.New,
	pipeline.New,
	wire.Struct(new(App), "*"),
)

// InitializeApp builds the pipeline, ledger and queue from cfg. The cleanup
// closes the database and Redis connections.
func InitializeApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, registerer prometheus.Registerer) (*App, func(), error) {
	wire.Build(appSet)
	return nil, nil, nil
}
