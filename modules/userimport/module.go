package userimport

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/reservation"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/mail"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/memory"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/persistence"
	"github.com/iota-uz/lms-admin/modules/userimport/infrastructure/reservations"
	"github.com/iota-uz/lms-admin/modules/userimport/presentation/controllers"
	"github.com/iota-uz/lms-admin/modules/userimport/services"
	"github.com/iota-uz/lms-admin/pkg/application"
	"github.com/iota-uz/lms-admin/pkg/configuration"
)

// Backend is the storage the pipeline reads and mutates.
type Backend struct {
	Accounts account.Store
	Courses  course.Gateway
	Tx       services.Transactor
}

// PostgresBackend works on the pool bound to the request context.
func PostgresBackend() Backend {
	return Backend{
		Accounts: persistence.NewAccountRepository(),
		Courses:  persistence.NewCourseRepository(),
		Tx:       services.PgTransactor,
	}
}

func MemoryBackend(dir *memory.Directory, courses *memory.Courses) Backend {
	return Backend{Accounts: dir, Courses: courses, Tx: &memory.Transactor{}}
}

type ModuleOptions struct {
	Import configuration.ImportOptions
	SMTP   configuration.SMTPOptions
	Origin string

	MaxUploadSize    int64
	ActorHeader      string
	ActorEmailHeader string

	// Backend defaults to PostgresBackend.
	Backend *Backend
	// Redis is required when Import.Reservations is "redis".
	Redis *redis.Client
	// Notifier overrides the SMTP notifier.
	Notifier services.Notifier
}

// OptionsFromConfig maps the process configuration onto ModuleOptions.
func OptionsFromConfig(conf *configuration.Configuration) ModuleOptions {
	return ModuleOptions{
		Import:           conf.Import,
		SMTP:             conf.SMTP,
		Origin:           conf.Origin,
		MaxUploadSize:    conf.MaxUploadSize,
		ActorHeader:      conf.ActorHeader,
		ActorEmailHeader: conf.ActorEmailHeader,
	}
}

func NewModule(opts ModuleOptions) application.Module {
	return &Module{opts: opts}
}

type Module struct {
	opts ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	backend := PostgresBackend()
	if m.opts.Backend != nil {
		backend = *m.opts.Backend
	}

	ladder, err := course.LoadRoleLadder(m.opts.Import.RoleLadderPath)
	if err != nil {
		return err
	}
	store, err := m.reservationStore()
	if err != nil {
		return err
	}

	notifier := m.opts.Notifier
	if notifier == nil && m.opts.SMTP.Enabled() {
		notifier = mail.NewSMTPNotifier(m.opts.SMTP)
	}
	if notifier != nil && app.EventPublisher() != nil {
		app.EventPublisher().Subscribe(services.NewReportMailer(notifier, m.opts.Origin).Handle)
	}

	app.RegisterServices(
		services.NewImportService(
			backend.Accounts,
			backend.Courses,
			store,
			backend.Tx,
			services.NewRolePolicy(ladder),
			app.EventPublisher(),
			services.ImportOptions{
				MaxRows: m.opts.Import.MaxRows,
				Workers: m.opts.Import.ValidateWorkers,
			},
		),
		services.NewPreviewStore(m.opts.Import.PreviewTTL),
	)

	app.RegisterControllers(
		controllers.NewImportController(app, controllers.ImportControllerOptions{
			MaxUploadSize:    m.opts.MaxUploadSize,
			DefaultDelimiter: m.opts.Import.DefaultDelimiter,
			DefaultEncoding:  m.opts.Import.DefaultEncoding,
			ActorHeader:      m.opts.ActorHeader,
			ActorEmailHeader: m.opts.ActorEmailHeader,
		}),
	)
	return nil
}

func (m *Module) reservationStore() (reservation.Store, error) {
	switch m.opts.Import.Reservations {
	case "redis":
		if m.opts.Redis == nil {
			return nil, fmt.Errorf("userimport: redis reservations need a redis client")
		}
		return reservations.NewRedisStore(m.opts.Redis, m.opts.Import.ReservationTTL), nil
	default:
		return memory.NewReservations(m.opts.Import.ReservationTTL), nil
	}
}

func (m *Module) Name() string {
	return "userimport"
}
