package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"recordbridge/internal/bootstrap/config"
	"recordbridge/internal/bootstrap/database"
	"recordbridge/internal/bootstrap/logging"
	sqliterepo "recordbridge/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "recordbridge/internal/infrastructure/persistence/sqlite/uow"
	"recordbridge/internal/ports"
	"recordbridge/internal/usecase/pipeline"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewConfigRepository,
			fx.As(new(ports.ConfigRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewJobRepository,
			fx.As(new(ports.JobRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewReviewRepository,
			fx.As(new(ports.ReviewRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewTransferRepository,
			fx.As(new(ports.TransferRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewRecordStore,
			fx.As(new(ports.RecordStore)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(provideServiceOptions),
	fx.Provide(pipeline.NewService),
	fx.Provide(provideDispatcher),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideServiceOptions(cfg config.Config) pipeline.Options {
	return pipeline.Options{
		TransferMaxAttempts:  cfg.Pipeline.TransferMaxAttempts,
		TransferRetryBackoff: cfg.Pipeline.TransferRetryBackoff,
		StallAfter:           cfg.Pipeline.StallAfter,
	}
}

func provideDispatcher(lc fx.Lifecycle, ctx context.Context, cfg config.Config, service *pipeline.Service) *pipeline.Dispatcher {
	dispatcher := pipeline.NewDispatcher(service, cfg.Pipeline.Workers)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			dispatcher.Start(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			dispatcher.Shutdown(stopCtx)
			return nil
		},
	})

	return dispatcher
}
