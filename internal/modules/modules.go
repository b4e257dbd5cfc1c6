package modules

import (
	"github.com/kingrea/latticeboot/internal/config"
	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/modules/health"
	"github.com/kingrea/latticeboot/internal/modules/journal"
	"github.com/kingrea/latticeboot/internal/modules/telemetry"
)

// RegisterBuiltins installs all of the built-in module factories into the
// provided registry.
func RegisterBuiltins(reg *module.Registry, opts config.Options) {
	if reg == nil {
		return
	}
	journal.Register(reg)
	telemetry.Register(reg, opts.MetricsNamespace)
	health.Register(reg)
}
