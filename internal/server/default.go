package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/lms-admin/pkg/application"
	"github.com/iota-uz/lms-admin/pkg/configuration"
	"github.com/iota-uz/lms-admin/pkg/httpapi"
	"github.com/iota-uz/lms-admin/pkg/metrics"
	"github.com/iota-uz/lms-admin/pkg/middleware"
	"github.com/iota-uz/lms-admin/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

// Default installs the request middleware stack and the metrics endpoint on
// the application and returns a server whose fallback handlers answer in JSON.
// Modules must be loaded before calling it.
func Default(options *DefaultOptions) *server.HTTPServer {
	app := options.Application
	conf := options.Configuration

	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	loggerOpts.RealIPHeader = conf.RealIPHeader
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, loggerOpts),
	}
	if options.Pool != nil {
		middlewares = append(middlewares, middleware.WithPool(options.Pool))
	}
	if len(conf.CORS.AllowedOrigins) > 0 {
		middlewares = append(middlewares, middleware.Cors(conf.CORS.AllowedOrigins,
			conf.ActorHeader, conf.ActorEmailHeader, conf.RequestIDHeader))
	}
	if conf.RateLimit.Enabled {
		var store limiter.Store
		if conf.RateLimit.Storage == "redis" {
			var err error
			store, err = middleware.NewRedisStore(conf.RateLimit.RedisURL)
			if err != nil {
				options.Logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
			}
		}
		middlewares = append(middlewares, middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerPeriod: conf.RateLimit.GlobalRPS,
			Store:             store,
		}))
	}
	app.RegisterMiddleware(middlewares...)

	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus))
	}
	return server.NewHTTPServer(app, NotFound(), MethodNotAllowed())
}

func NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "not found", map[string]string{
			"path": r.URL.Path,
		})
	})
}

func MethodNotAllowed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", map[string]string{
			"path":   r.URL.Path,
			"method": r.Method,
		})
	})
}
