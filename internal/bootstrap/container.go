package bootstrap

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/scidatahub/containerdb/internal/config"
	"github.com/scidatahub/containerdb/internal/infra/blob"
	"github.com/scidatahub/containerdb/internal/infra/cache"
	"github.com/scidatahub/containerdb/internal/infra/db"
	"github.com/scidatahub/containerdb/internal/infra/logger"
	"github.com/scidatahub/containerdb/internal/modules/handler"
	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/modules/repo"
	"github.com/scidatahub/containerdb/internal/modules/service"
	"github.com/scidatahub/containerdb/internal/pkg/schema"
)

func BuildContainer() *do.Injector {
	inj := do.New()

	// config
	do.Provide(inj, func(i *do.Injector) (*config.Config, error) {
		return config.Load()
	})

	// logger
	do.Provide(inj, func(i *do.Injector) (*zap.Logger, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return logger.New(cfg.Log.Level)
	})

	// DB
	do.Provide(inj, func(i *do.Injector) (*gorm.DB, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		d, err := db.New(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			_ = d.AutoMigrate(
				&model.User{},
				&model.Group{},
				&model.ContainerType{},
				&model.Software{},
				&model.Keyword{},
				&model.File{},
				&model.Dataset{},
				&model.DatasetPlaceholder{},
				&model.AccessGrant{},
			)
		}

		// ensure the bootstrap admin account exists
		if err := EnsureAdminUser(context.Background(), d, cfg, log); err != nil {
			return nil, err
		}

		return d, nil
	})

	// Redis
	do.Provide(inj, func(i *do.Injector) (*redis.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return cache.New(cfg)
	})

	do.Provide(inj, func(i *do.Injector) (*cache.DatasetCache, error) {
		client := do.MustInvoke[*redis.Client](i)
		return cache.NewDatasetCache(client), nil
	})

	// Blob store
	do.Provide(inj, func(i *do.Injector) (blob.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return blob.New(context.Background(), cfg)
	})

	// Model version registry
	do.Provide(inj, func(i *do.Injector) (*schema.Registry, error) {
		return schema.NewRegistry()
	})

	// Repo
	do.Provide(inj, func(i *do.Injector) (repo.DatasetRepo, error) {
		return repo.NewDatasetRepo(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.EntityRepo, error) {
		return repo.NewEntityRepo(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.UserRepo, error) {
		return repo.NewUserRepo(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.PermissionRepo, error) {
		return repo.NewPermissionRepo(do.MustInvoke[*gorm.DB](i)), nil
	})

	// Service
	do.Provide(inj, func(i *do.Injector) (service.PermissionService, error) {
		return service.NewPermissionService(
			do.MustInvoke[repo.PermissionRepo](i),
			do.MustInvoke[repo.UserRepo](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.IngestService, error) {
		return service.NewIngestService(
			do.MustInvoke[*gorm.DB](i),
			do.MustInvoke[*schema.Registry](i),
			do.MustInvoke[blob.Store](i),
			do.MustInvoke[*cache.DatasetCache](i),
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.DatasetService, error) {
		return service.NewDatasetService(
			do.MustInvoke[repo.DatasetRepo](i),
			do.MustInvoke[repo.UserRepo](i),
			do.MustInvoke[service.PermissionService](i),
			do.MustInvoke[blob.Store](i),
			do.MustInvoke[*cache.DatasetCache](i),
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.EntityService, error) {
		return service.NewEntityService(do.MustInvoke[repo.EntityRepo](i)), nil
	})

	// Handler
	do.Provide(inj, func(i *do.Injector) (*handler.DatasetHandler, error) {
		return handler.NewDatasetHandler(
			do.MustInvoke[service.IngestService](i),
			do.MustInvoke[service.DatasetService](i),
			do.MustInvoke[*cache.DatasetCache](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.EntityHandler, error) {
		return handler.NewEntityHandler(do.MustInvoke[service.EntityService](i)), nil
	})

	return inj
}
