package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/lms-admin/modules"
	"github.com/iota-uz/lms-admin/modules/userimport"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/memory"
	"github.com/iota-uz/lms-admin/modules/userimport/services"
	"github.com/iota-uz/lms-admin/pkg/application"
	"github.com/iota-uz/lms-admin/pkg/composables"
	"github.com/iota-uz/lms-admin/pkg/configuration"
	"github.com/iota-uz/lms-admin/pkg/eventbus"
	"github.com/iota-uz/lms-admin/pkg/logging"
)

// runtime is the wired import pipeline for one CLI invocation.
type runtime struct {
	imports   *services.ImportService
	reportDir string
	bind      func(context.Context) context.Context
	close     func()
}

func (rt *runtime) Close() {
	if rt.close != nil {
		rt.close()
	}
}

func openRuntime(ctx context.Context, memoryMode bool, seedPath string) (*runtime, error) {
	if memoryMode {
		return openMemoryRuntime(seedPath)
	}
	return openDBRuntime(ctx)
}

// openMemoryRuntime works on in-process stores, optionally seeded from a
// YAML file. Nothing outlives the process.
func openMemoryRuntime(seedPath string) (*runtime, error) {
	dir, courses := memory.NewDirectory(), memory.NewCourses()
	if seedPath != "" {
		if err := loadSeed(seedPath, dir, courses); err != nil {
			return nil, withCode(exitUsage, err)
		}
	}
	backend := userimport.MemoryBackend(dir, courses)
	opts := userimport.ModuleOptions{
		Import:  configuration.DefaultImportOptions(),
		Backend: &backend,
	}

	entry := logging.NopEntry()
	app := application.New(&application.ApplicationOptions{EventBus: eventbus.NewEventPublisher(entry)})
	if err := modules.Load(app, userimport.NewModule(opts)); err != nil {
		return nil, withCode(exitUsage, err)
	}
	return &runtime{
		imports:   app.Service(services.ImportService{}).(*services.ImportService),
		reportDir: opts.Import.ReportDir,
		bind: func(ctx context.Context) context.Context {
			return composables.WithLogger(ctx, entry)
		},
	}, nil
}

func openDBRuntime(ctx context.Context) (*runtime, error) {
	conf := configuration.Use()
	pool, err := connectDB(ctx, conf)
	if err != nil {
		conf.Unload()
		return nil, err
	}

	var rdb *redis.Client
	if conf.Import.Reservations == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: conf.RedisURL})
	}
	closeAll := func() {
		if rdb != nil {
			_ = rdb.Close()
		}
		pool.Close()
		conf.Unload()
	}

	entry := logrus.NewEntry(conf.Logger()).WithField("component", "userimport-cli")
	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(entry),
	})
	if err := modules.Load(app, modules.BuiltInModules(conf, userimport.ModuleOptions{Redis: rdb})...); err != nil {
		closeAll()
		return nil, withCode(exitUsage, err)
	}
	return &runtime{
		imports:   app.Service(services.ImportService{}).(*services.ImportService),
		reportDir: conf.Import.ReportDir,
		bind: func(ctx context.Context) context.Context {
			return composables.WithLogger(composables.WithPool(ctx, pool), entry)
		},
		close: closeAll,
	}, nil
}

func connectDB(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return nil, withCode(exitDB, fmt.Errorf("connect to database: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, withCode(exitDB, fmt.Errorf("ping database: %w", err))
	}
	return pool, nil
}
