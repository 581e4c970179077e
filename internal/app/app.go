package app

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/shinyes/filterdeck/internal/condition"
	"github.com/shinyes/filterdeck/internal/config"
	"github.com/shinyes/filterdeck/internal/db"
	httpserver "github.com/shinyes/filterdeck/internal/http"
	"github.com/shinyes/filterdeck/internal/report"
	"github.com/shinyes/filterdeck/internal/service"
	"github.com/shinyes/filterdeck/internal/storage"
	"github.com/shinyes/filterdeck/internal/store"
)

type Container struct {
	Config        config.Config
	Store         *store.SQLStore
	Catalog       condition.Catalog
	UserService   *service.UserService
	FilterService *service.FilterService
	GroupService  *service.FilterGroupService
	ExportService *service.ExportService
	Renderer      *report.Renderer
	Router        *fiber.App
}

// Open wires the database, catalog, storage and services. Admin commands use
// it directly; Build adds the bootstrap user and the HTTP router on top.
func Open(ctx context.Context, cfg config.Config) (*Container, func() error, error) {
	sqliteDB, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error {
		return sqliteDB.Close()
	}

	if err := db.Migrate(sqliteDB); err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	catalog := condition.DefaultCatalog()
	if cfg.TableCatalogPath != "" {
		catalog, err = condition.LoadCatalog(cfg.TableCatalogPath)
		if err != nil {
			_ = cleanup()
			return nil, nil, fmt.Errorf("load table catalog: %w", err)
		}
	}

	var exportStorage storage.Store
	switch cfg.Storage {
	case config.StorageBackendLocal, "":
		localStore, err := storage.NewLocalStore(cfg.ExportDir)
		if err != nil {
			_ = cleanup()
			return nil, nil, err
		}
		exportStorage = localStore
	case config.StorageBackendS3:
		s3Store, err := storage.NewS3Store(ctx, cfg.S3)
		if err != nil {
			_ = cleanup()
			return nil, nil, err
		}
		exportStorage = s3Store
	default:
		_ = cleanup()
		return nil, nil, fmt.Errorf("unsupported storage backend %s", cfg.Storage)
	}

	sqlStore := store.New(sqliteDB)
	filterService := service.NewFilterService(sqlStore, catalog)
	groupService := service.NewFilterGroupService(sqlStore)

	return &Container{
		Config:        cfg,
		Store:         sqlStore,
		Catalog:       catalog,
		UserService:   service.NewUserService(sqlStore),
		FilterService: filterService,
		GroupService:  groupService,
		ExportService: service.NewExportService(filterService, groupService, exportStorage),
		Renderer:      report.NewRenderer(),
	}, cleanup, nil
}

func Build(ctx context.Context, cfg config.Config) (*Container, func() error, error) {
	container, cleanup, err := Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := container.UserService.EnsureBootstrap(ctx, cfg.BootstrapUser, cfg.BootstrapToken); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("bootstrap setup: %w", err)
	}
	container.Router = httpserver.NewRouter(cfg, container.UserService, container.FilterService, container.GroupService, container.Renderer)
	return container, cleanup, nil
}
