package app

import (
	"time"

	"github.com/kingrea/latticeboot/internal/module"
)

// bootstrap loads and sets up every module in order, then starts the first.
func (a *App) bootstrap(descriptors []module.Descriptor) {
	modules, err := a.loader.LoadAll(descriptors)
	if err != nil {
		a.failed.Store(true)
		a.reportFailure(module.NameOf(err), nil, err)
		a.finish(err)
		return
	}
	a.modules = modules
	for _, m := range modules {
		m.SetLogger(a.sugar.With("module", m.Name()))
	}
	for _, m := range modules {
		if err := a.setUp(m); err != nil {
			a.fail(m, err)
			return
		}
	}
	a.startNext(0)
}

func (a *App) setUp(m *module.Module) error {
	a.current = m
	if err := m.Advance(module.StateSettingUp); err != nil {
		return err
	}
	m.Logger().Debug("Setting up...")
	a.broker.Publish(module.TopicSettingUp, module.ModuleEvent{Module: m})
	if s, ok := m.Impl().(module.SetUpper); ok {
		if err := callHook(func() error { return s.SetUp(a, m) }); err != nil {
			return &module.SetUpError{Module: m.Name(), Err: err}
		}
	}
	if err := m.Advance(module.StateSetUp); err != nil {
		return err
	}
	a.broker.Publish(module.TopicSetUp, module.ModuleEvent{Module: m})
	a.setUps.record(m)
	if obs, ok := m.Impl().(module.SetUpObserver); ok {
		a.setUps.observe(m, obs)
	}
	return nil
}

// startNext starts the module at index i. The following module starts on a
// later loop turn once this one has completed.
func (a *App) startNext(i int) {
	if a.failed.Load() {
		return
	}
	if i >= len(a.modules) {
		a.complete()
		return
	}
	m := a.modules[i]
	a.current = m
	if err := m.Advance(module.StateStarting); err != nil {
		a.fail(m, err)
		return
	}
	if err := a.registry.add(m); err != nil {
		a.fail(m, err)
		return
	}
	m.Logger().Info("Starting...")
	a.broker.Publish(module.TopicStarting, module.ModuleEvent{Module: m})

	a.wireReferences(m)
	if err := a.wireRequired(m); err != nil {
		a.fail(m, err)
		return
	}
	a.wireOptional(m)

	began := time.Now()
	settled := false
	complete := func(err error) {
		if settled {
			return
		}
		settled = true
		if a.failed.Load() {
			return
		}
		if err != nil {
			a.fail(m, err)
			return
		}
		if err := m.Advance(module.StateStarted); err != nil {
			a.fail(m, err)
			return
		}
		a.registry.markStarted(m.Name())
		m.Logger().Infow("Started.", "elapsed", time.Since(began))
		a.broker.Publish(module.TopicStarted, module.ModuleEvent{Module: m})
		a.loop.post(func() { a.startNext(i + 1) })
	}

	switch impl := m.Impl().(type) {
	case module.AsyncStarter:
		a.startAsync(m, impl, complete)
	case module.Starter:
		complete(callHook(func() error { return impl.Start(a, m) }))
	default:
		a.fail(m, &module.InvalidModuleError{Module: m.Name(), Reason: "no start hook"})
	}
}

func (a *App) complete() {
	if a.failed.Load() {
		return
	}
	a.current = nil
	a.booted.Store(true)
	elapsed := time.Since(a.opts.StartTime)
	a.broker.Publish(module.TopicAppStarted, module.StartedEvent{
		ID:      a.opts.ID,
		RunID:   a.runID,
		Env:     a.opts.Env,
		Elapsed: elapsed,
	})
	a.sugar.Infow("Started.",
		"env", a.opts.Env,
		"startTime", a.opts.StartTime,
		"elapsed", elapsed,
		"modules", len(a.modules),
	)
	a.finish(nil)
}

// fail records err against m on the loop and reports it to Start.
func (a *App) fail(m *module.Module, err error) {
	err = module.Annotate(m.Name(), err)
	m.Fail(err)
	if !a.failed.CompareAndSwap(false, true) {
		m.Logger().Debugw("Failure after boot was aborted", "error", err)
		return
	}
	a.reportFailure(m.Name(), m, err)
	a.finish(err)
}

// abandon fails the boot without blaming a module, for panics raised after
// the current module had already started.
func (a *App) abandon(err error) {
	if !a.failed.CompareAndSwap(false, true) {
		return
	}
	a.reportFailure("", nil, err)
	a.finish(err)
}

func (a *App) reportFailure(name string, m *module.Module, err error) {
	if name == "" {
		a.sugar.Errorw("Boot failed", "error", err)
	} else {
		a.sugar.Errorw("Module failed", "module", name, "error", err)
	}
	a.broker.Publish(module.TopicFailed, module.FailedEvent{Name: name, Module: m, Err: err})
}

// handlePanic converts a panic that escaped a task into a failure.
func (a *App) handlePanic(recovered any) {
	err := error(&module.PanicError{Value: recovered})
	switch {
	case a.booted.Load():
		a.sugar.Errorw("Unhandled panic", "panic", recovered)
		a.stop(err)
	case a.current == nil || a.current.State() == module.StateStarted:
		a.abandon(err)
	default:
		a.fail(a.current, err)
	}
}

// callHook runs fn and turns a panic into an error.
func callHook(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &module.PanicError{Value: r}
		}
	}()
	return fn()
}
