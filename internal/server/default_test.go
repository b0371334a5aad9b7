package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/lms-admin/pkg/application"
	"github.com/iota-uz/lms-admin/pkg/configuration"
	"github.com/iota-uz/lms-admin/pkg/httpapi"
)

type pingController struct{}

func (pingController) Key() string { return "/ping" }

func (pingController) Register(r *mux.Router) {
	r.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
}

func TestDefault(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	app := application.New(&application.ApplicationOptions{})
	app.RegisterControllers(pingController{})
	conf := &configuration.Configuration{
		RequestIDHeader: "X-Request-ID",
		RealIPHeader:    "X-Real-IP",
		ActorHeader:     "X-Actor-Id",
		Prometheus:      configuration.PrometheusOptions{Enabled: true, Path: "/metrics"},
		RateLimit:       configuration.RateLimitOptions{Enabled: true, GlobalRPS: 1000, Storage: "memory"},
		CORS:            configuration.CORSOptions{AllowedOrigins: []string{"https://lms.example.test"}},
	}

	h := Default(&DefaultOptions{Logger: logger, Configuration: conf, Application: app}).Handler()

	serve := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	require.Equal(t, http.StatusNoContent, serve(http.MethodGet, "/ping").Code)
	require.Equal(t, http.StatusOK, serve(http.MethodGet, "/metrics").Code)

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
		req.Header.Set("Origin", "https://lms.example.test")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		req.Header.Set("Access-Control-Request-Headers", "x-actor-id")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, "https://lms.example.test", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("404 is json", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/__nonexistent__")
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var env httpapi.ErrorEnvelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.Equal(t, "NOT_FOUND", env.Code)
		require.Equal(t, "/api/__nonexistent__", env.Meta["path"])
	})

	t.Run("405 is json", func(t *testing.T) {
		rec := serve(http.MethodPost, "/ping")
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		var env httpapi.ErrorEnvelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.Equal(t, "METHOD_NOT_ALLOWED", env.Code)
		require.Equal(t, http.MethodPost, env.Meta["method"])
	})
}
