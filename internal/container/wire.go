//go:build wireinject
// +build wireinject

package container

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
)

// InitializeApp wires the full pipeline with history, events and mirror
func InitializeApp(cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(
		PipelineSet,
		ProvideRunRepository,
		ProvidePublisher,
		ProvideMirror,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeHistory opens only the run history store
func InitializeHistory(cfg *config.Config, logger *zap.Logger) (download.RunRepository, func(), error) {
	wire.Build(ProvideRunRepository)
	return nil, nil, nil
}
