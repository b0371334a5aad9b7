package modules

import (
	"fmt"

	"github.com/iota-uz/lms-admin/modules/userimport"
	"github.com/iota-uz/lms-admin/pkg/application"
	"github.com/iota-uz/lms-admin/pkg/configuration"
)

// BuiltInModules returns the modules every lms-admin binary loads.
func BuiltInModules(conf *configuration.Configuration, opts userimport.ModuleOptions) []application.Module {
	base := userimport.OptionsFromConfig(conf)
	base.Backend = opts.Backend
	base.Redis = opts.Redis
	base.Notifier = opts.Notifier
	return []application.Module{
		userimport.NewModule(base),
	}
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return fmt.Errorf("register module %s: %w", module.Name(), err)
		}
	}
	return nil
}
