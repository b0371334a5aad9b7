package userimport_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/lms-admin/modules/userimport"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/mail"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/memory"
	"github.com/iota-uz/lms-admin/modules/userimport/services"
	"github.com/iota-uz/lms-admin/pkg/application"
	"github.com/iota-uz/lms-admin/pkg/configuration"
	"github.com/iota-uz/lms-admin/pkg/eventbus"
	"github.com/iota-uz/lms-admin/pkg/logging"
)

func importOptions() configuration.ImportOptions {
	return configuration.ImportOptions{
		MaxRows:          100,
		DefaultDelimiter: "semicolon",
		DefaultEncoding:  "auto",
		PreviewTTL:       time.Minute,
		ReservationTTL:   time.Minute,
		ValidateWorkers:  2,
		Reservations:     "memory",
	}
}

func TestModule_RegistersServicesAndController(t *testing.T) {
	t.Parallel()

	bus := eventbus.NewEventPublisher(logging.NopEntry())
	app := application.New(&application.ApplicationOptions{EventBus: bus})
	backend := userimport.MemoryBackend(memory.NewDirectory(), memory.NewCourses())

	m := userimport.NewModule(userimport.ModuleOptions{
		Import:   importOptions(),
		Backend:  &backend,
		Notifier: &mail.Recorder{},
	})
	require.Equal(t, "userimport", m.Name())
	require.NoError(t, m.Register(app))

	require.NotNil(t, app.Service(services.ImportService{}))
	require.NotNil(t, app.Service(services.PreviewStore{}))
	require.Len(t, app.Controllers(), 1)
	require.Equal(t, "/userimport", app.Controllers()[0].Key())
	require.Equal(t, 1, bus.SubscribersCount())
}

func TestModule_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	backend := userimport.MemoryBackend(memory.NewDirectory(), memory.NewCourses())

	opts := importOptions()
	opts.Reservations = "redis"
	err := userimport.NewModule(userimport.ModuleOptions{Import: opts, Backend: &backend}).
		Register(application.New(&application.ApplicationOptions{}))
	require.ErrorContains(t, err, "redis")

	ladder := filepath.Join(t.TempDir(), "ladder.yaml")
	require.NoError(t, os.WriteFile(ladder, []byte("roles: [student]\n"), 0o600))
	opts = importOptions()
	opts.RoleLadderPath = ladder
	err = userimport.NewModule(userimport.ModuleOptions{Import: opts, Backend: &backend}).
		Register(application.New(&application.ApplicationOptions{}))
	require.ErrorContains(t, err, "at least two roles")
}
