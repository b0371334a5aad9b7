package application

import (
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type stubController struct{ key string }

func (c *stubController) Register(*mux.Router) {}
func (c *stubController) Key() string          { return c.key }

type stubService struct{ name string }

func TestApplication_Registry(t *testing.T) {
	t.Parallel()

	app := New(&ApplicationOptions{})
	app.RegisterControllers(&stubController{key: "/b"}, &stubController{key: "/a"}, &stubController{key: "/b"})
	controllers := app.Controllers()
	require.Len(t, controllers, 2)
	require.Equal(t, "/a", controllers[0].Key())
	require.Equal(t, "/b", controllers[1].Key())

	svc := &stubService{name: "x"}
	app.RegisterServices(svc)
	require.Same(t, svc, app.Service(stubService{}).(*stubService))
	require.Panics(t, func() { app.Service(stubController{}) })
}
