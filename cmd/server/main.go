package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	internalserver "github.com/iota-uz/lms-admin/internal/server"
	"github.com/iota-uz/lms-admin/modules"
	"github.com/iota-uz/lms-admin/modules/userimport"
	"github.com/iota-uz/lms-admin/pkg/application"
	"github.com/iota-uz/lms-admin/pkg/configuration"
	"github.com/iota-uz/lms-admin/pkg/eventbus"
	"github.com/iota-uz/lms-admin/pkg/tracing"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, conf.OpenTelemetry)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if conf.Import.Reservations == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: conf.RedisURL})
		defer rdb.Close()
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logrus.NewEntry(logger).WithField("component", "eventbus")),
	})
	if err := modules.Load(app, modules.BuiltInModules(conf, userimport.ModuleOptions{Redis: rdb})...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}

	serverInstance := internalserver.Default(&internalserver.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	log.Printf("Listening on: %s\n", conf.Origin)
	if err := serverInstance.Start(ctx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

