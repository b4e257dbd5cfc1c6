// Package app boots a list of modules: it loads them, runs their set-up
// hooks, then starts them one at a time in declaration order on a single run
// loop, wiring cross-module references as their targets come up.
package app

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingrea/latticeboot/internal/config"
	"github.com/kingrea/latticeboot/internal/loader"
	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/pubsub"
	"github.com/kingrea/latticeboot/plugins"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("app: already started")

// App is the orchestrator. It implements module.Host.
type App struct {
	opts   config.Options
	runID  string
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	broker *pubsub.Broker
	loader *loader.Loader
	exit   func(int)

	registry *Registry
	loop     *loop
	setUps   *setUpBroadcast

	// owned by the loop goroutine
	modules []*module.Module
	current *module.Module

	booted    atomic.Bool
	// set by the first boot failure; later modules are not started
	failed    atomic.Bool
	startOnce sync.Once

	resultOnce sync.Once
	result     chan error

	stopOnce sync.Once
	done     chan struct{}
	errMu    sync.Mutex
	err      error
}

// Option customizes an App.
type Option func(*App)

// WithLoader replaces the default loader.
func WithLoader(l *loader.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithPackages sets the registry used for bare locators on the default
// loader.
func WithPackages(reg *module.Registry) Option {
	return func(a *App) { a.loader.Packages = reg }
}

// WithLogger sets the base logger. It defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithBroker shares an existing broker, for observers that subscribe before
// the app is built.
func WithBroker(b *pubsub.Broker) Option {
	return func(a *App) { a.broker = b }
}

// WithExit replaces os.Exit in Main.
func WithExit(exit func(int)) Option {
	return func(a *App) { a.exit = exit }
}

// New builds an App. Unset options take their defaults.
func New(opts config.Options, options ...Option) *App {
	opts = opts.WithDefaults()
	a := &App{
		opts:   opts,
		runID:  uuid.NewString(),
		logger: zap.NewNop(),
		broker: pubsub.NewBroker(),
		loader: &loader.Loader{
			RootPath: opts.RootPath,
			Packages: module.NewRegistry(),
			Scripts:  plugins.NewScriptResolver(),
		},
		exit:     os.Exit,
		registry: newRegistry(),
		result:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	for _, option := range options {
		if option != nil {
			option(a)
		}
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.With(zap.String("app", opts.ID), zap.String("run", a.runID))
	a.sugar = a.logger.Sugar()
	a.loop = newLoop(a.handlePanic)
	a.setUps = &setUpBroadcast{host: a, broker: a.broker}
	return a
}

// Start boots descriptors and returns once every module has started or the
// first failure. On success the run loop keeps serving continuations and
// events until Close.
func (a *App) Start(ctx context.Context, descriptors []module.Descriptor) error {
	first := false
	a.startOnce.Do(func() { first = true })
	if !first {
		return ErrAlreadyStarted
	}
	a.sugar.Infow("Starting...", "env", a.opts.Env, "modules", len(descriptors))
	go a.loop.run()
	a.loop.post(func() { a.bootstrap(descriptors) })
	select {
	case err := <-a.result:
		if err != nil {
			a.stop(err)
		}
		return err
	case <-ctx.Done():
		a.finish(ctx.Err())
		a.stop(ctx.Err())
		return ctx.Err()
	}
}

// Main starts the app and exits the process with status 1 on failure.
func (a *App) Main(ctx context.Context, descriptors []module.Descriptor) error {
	err := a.Start(ctx, descriptors)
	if err != nil {
		a.sugar.Errorw("Failed to start", "module", module.NameOf(err), "error", err)
		_ = a.logger.Sync()
		a.exit(1)
	}
	return err
}

// Close stops the run loop. Pending continuations are dropped.
func (a *App) Close() error {
	a.stop(nil)
	return nil
}

// Done is closed when the app stops, through Close or a fatal error.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// Err returns the fatal error that stopped the app, if any.
func (a *App) Err() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.err
}

func (a *App) finish(err error) {
	a.resultOnce.Do(func() { a.result <- err })
}

func (a *App) stop(err error) {
	a.stopOnce.Do(func() {
		a.errMu.Lock()
		a.err = err
		a.errMu.Unlock()
		a.loop.close()
		close(a.done)
	})
}

// RunID identifies this boot.
func (a *App) RunID() string { return a.runID }

// Options returns the effective options.
func (a *App) Options() config.Options { return a.opts }

// Registry exposes the module registry for read-only inspection.
func (a *App) Registry() *Registry { return a.registry }

// ID implements module.Host.
func (a *App) ID() string { return a.opts.ID }

// Env implements module.Host.
func (a *App) Env() string { return a.opts.Env }

// PathTo implements module.Host.
func (a *App) PathTo(parts ...string) string { return a.opts.PathTo(parts...) }

// Logger implements module.Host.
func (a *App) Logger() *zap.SugaredLogger { return a.sugar }

// Broker implements module.Host.
func (a *App) Broker() *pubsub.Broker { return a.broker }

// Module implements module.Host.
func (a *App) Module(name string) (*module.Module, bool) {
	return a.registry.Lookup(name)
}

// Modules implements module.Host.
func (a *App) Modules() []*module.Module {
	return a.registry.Modules()
}

// OnModuleReady implements module.Host. The waiter is registered on the run
// loop, so it is safe to call from any goroutine.
func (a *App) OnModuleReady(names []string, fn func()) {
	names = append([]string(nil), names...)
	a.loop.post(func() { a.waitFor(names, fn) })
}
