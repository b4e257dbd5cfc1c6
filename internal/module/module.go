package module

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/latticeboot/internal/pubsub"
)

// Implementation is the loaded code behind a module. It must satisfy Starter
// or AsyncStarter; the remaining interfaces in this file are optional.
type Implementation any

// Host is the orchestrator as seen by module hooks.
type Host interface {
	// ID is the application identifier from the options.
	ID() string
	// Env is the environment name (development, production, ...).
	Env() string
	// PathTo joins parts onto the application root path.
	PathTo(parts ...string) string
	Logger() *zap.SugaredLogger
	Broker() *pubsub.Broker
	// Module looks up a registered module. Modules become visible when they
	// enter the starting state.
	Module(name string) (*Module, bool)
	// Modules returns every registered module in start order.
	Modules() []*Module
	// OnModuleReady runs fn on a later loop turn once every named module has
	// started. An empty list or a blank name means fn never runs.
	OnModuleReady(names []string, fn func())
}

// Starter is implemented by modules whose start phase completes when Start
// returns. A returned error aborts the boot.
type Starter interface {
	Start(host Host, m *Module) error
}

// AsyncStarter is implemented by modules that report start completion through
// done. done must be called exactly once, from any goroutine.
type AsyncStarter interface {
	StartAsync(host Host, m *Module, done func(error))
}

// SetUpper runs during the set-up phase, before any module starts.
type SetUpper interface {
	SetUp(host Host, m *Module) error
}

// Defaulter supplies configuration used for keys the descriptor leaves unset.
type Defaulter interface {
	DefaultConfig() Config
}

// Requirer lists properties whose referenced modules must already be
// registered when this module starts. Entries may hold several
// space-separated properties.
type Requirer interface {
	RequiredModules() []string
}

// OptionalDependent declares groups of properties that activate handlers once
// every referenced module has started.
type OptionalDependent interface {
	OptionalModules() []OptionalGroup
}

// SetUpObserver is notified once for every other module that completes its
// set-up phase, whether that happened before or after the observer's own.
type SetUpObserver interface {
	OnModuleSetUp(host Host, info SetUpInfo)
}

// SetUpInfo describes one set-up notification.
type SetUpInfo struct {
	// Module is the observing module.
	Module *Module
	// SetUpModule is the module that finished setting up.
	SetUpModule *Module
}

// OptionalHandler runs after an optional group's modules have been bound.
type OptionalHandler func(host Host, m *Module)

// OptionalGroup is a set of properties that are bound together.
type OptionalGroup struct {
	Properties []string
	Handlers   []OptionalHandler
}

// Optional builds a group from a space-separated property list.
func Optional(properties string, handlers ...OptionalHandler) OptionalGroup {
	return OptionalGroup{Properties: strings.Fields(properties), Handlers: handlers}
}

// SplitProperties flattens entries that contain space-separated property
// names.
func SplitProperties(entries []string) []string {
	var out []string
	for _, entry := range entries {
		out = append(out, strings.Fields(entry)...)
	}
	return out
}

// StartFunc adapts a function into a Starter.
type StartFunc func(host Host, m *Module) error

// Start implements Starter.
func (f StartFunc) Start(host Host, m *Module) error {
	if f == nil {
		return nil
	}
	return f(host, m)
}

// AsyncStartFunc adapts a function into an AsyncStarter.
type AsyncStartFunc func(host Host, m *Module, done func(error))

// StartAsync implements AsyncStarter.
func (f AsyncStartFunc) StartAsync(host Host, m *Module, done func(error)) {
	if f == nil {
		done(nil)
		return
	}
	f(host, m, done)
}

// IsAsync reports whether impl starts through AsyncStarter. Implementations
// offering both variants are treated as asynchronous.
func IsAsync(impl Implementation) bool {
	_, ok := impl.(AsyncStarter)
	return ok
}

// CanStart reports whether impl has a usable start hook.
func CanStart(impl Implementation) bool {
	if impl == nil {
		return false
	}
	switch impl.(type) {
	case Starter, AsyncStarter:
		return true
	}
	return false
}
