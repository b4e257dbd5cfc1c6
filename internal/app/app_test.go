package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kingrea/latticeboot/internal/config"
	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/pubsub"
)

func TestStartRunsEveryModuleInOrder(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{
		"a": &syncModule{},
		"b": &asyncModule{start: func(_ module.Host, _ *module.Module, done func(error)) {
			go func() {
				time.Sleep(10 * time.Millisecond)
				done(nil)
			}()
		}},
		"c": &syncModule{},
	})

	err := f.app.Start(context.Background(), []module.Descriptor{desc("a", nil), desc("b", nil), desc("c", nil)})
	require.NoError(t, err)

	require.Equal(t, []string{
		"settingUp:a", "setUp:a",
		"settingUp:b", "setUp:b",
		"settingUp:c", "setUp:c",
		"starting:a", "started:a",
		"starting:b", "started:b",
		"starting:c", "started:c",
		"app.started",
	}, f.events.list())

	for _, m := range f.app.Modules() {
		require.Equal(t, module.StateStarted, m.State(), m.Name())
		require.True(t, f.app.Registry().IsStarted(m.Name()))
	}
}

func TestStartPublishesAppStartedOnce(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{"a": &syncModule{}})
	var got []module.StartedEvent
	f.app.Broker().Subscribe(module.TopicAppStarted, func(msg pubsub.Message) {
		got = append(got, msg.Payload.(module.StartedEvent))
	})

	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil)}))
	require.Len(t, got, 1)
	require.Equal(t, "test", got[0].ID)
	require.Equal(t, config.DefaultEnv, got[0].Env)
	require.Equal(t, f.app.RunID(), got[0].RunID)
	require.Greater(t, got[0].Elapsed, time.Duration(0))
}

func TestStartAbortsOnFirstFailure(t *testing.T) {
	var cStarted atomic.Bool
	f := newFixture(t, map[string]module.Implementation{
		"a": &syncModule{},
		"b": &asyncModule{},
		"c": &syncModule{start: func(module.Host, *module.Module) error {
			cStarted.Store(true)
			return errors.New("boom")
		}},
		"d": &syncModule{},
	})

	err := f.app.Start(context.Background(), []module.Descriptor{desc("a", nil), desc("b", nil), desc("c", nil), desc("d", nil)})
	require.Error(t, err)
	require.Equal(t, "c", module.NameOf(err))
	require.ErrorContains(t, err, "boom")
	var failure *module.StartFailureError
	require.ErrorAs(t, err, &failure)

	require.True(t, cStarted.Load())
	require.NotEqual(t, -1, f.events.index("started:a"))
	require.NotEqual(t, -1, f.events.index("started:b"))
	require.Equal(t, -1, f.events.index("started:c"))
	require.Equal(t, -1, f.events.index("starting:d"))
	require.Equal(t, -1, f.events.index("app.started"))
	require.Equal(t, 1, f.events.count("failed:c"))

	c, ok := f.app.Module("c")
	require.True(t, ok)
	require.Equal(t, module.StateFailed, c.State())
	require.ErrorIs(t, f.app.Err(), err)
	await(t, f.app.Done(), "app stop")
}

func TestEarlierModuleStartsBeforeLaterOneBegins(t *testing.T) {
	var order []string
	f := newFixture(t, map[string]module.Implementation{
		"a": &asyncModule{start: func(_ module.Host, _ *module.Module, done func(error)) {
			go func() {
				time.Sleep(20 * time.Millisecond)
				done(nil)
			}()
		}},
		"b": &syncModule{start: func(host module.Host, _ *module.Module) error {
			a, ok := host.Module("a")
			if !ok || a.State() != module.StateStarted {
				return errors.New("a has not started")
			}
			order = append(order, "b")
			return nil
		}},
	})
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil), desc("b", nil)}))
	require.Equal(t, []string{"b"}, order)
	require.Less(t, f.events.index("started:a"), f.events.index("starting:b"))
}

func TestModuleIsVisibleWhenStarting(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{"a": &syncModule{}})
	visible := false
	startedEarly := false
	f.app.Broker().Subscribe(module.TopicStarting, func(msg pubsub.Message) {
		name := msg.Payload.(module.ModuleEvent).Module.Name()
		_, visible = f.app.Registry().Lookup(name)
		startedEarly = f.app.Registry().IsStarted(name)
	})
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil)}))
	require.True(t, visible)
	require.False(t, startedEarly)
}

func TestMissingRequiredDependencyFailsBeforeStart(t *testing.T) {
	cases := []struct {
		name   string
		cfg    module.Config
		target string
	}{
		{"unconfigured", nil, ""},
		{"unknown module", module.Config{"dbId": "nope"}, "nope"},
		{"declared later", module.Config{"dbId": "db"}, "db"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var called atomic.Bool
			f := newFixture(t, map[string]module.Implementation{
				"api": &requiring{syncModule: syncModule{start: func(module.Host, *module.Module) error {
					called.Store(true)
					return nil
				}}, required: []string{"db"}},
				"db": &syncModule{},
			})
			err := f.app.Start(context.Background(), []module.Descriptor{desc("api", tc.cfg), desc("db", nil)})
			var missing *module.MissingDependencyError
			require.ErrorAs(t, err, &missing)
			require.Equal(t, "api", missing.Module)
			require.Equal(t, "db", missing.Property)
			require.Equal(t, tc.target, missing.Target)
			require.False(t, called.Load())
			require.Equal(t, -1, f.events.index("starting:db"))
		})
	}
}

func TestRequiredDependenciesAreBound(t *testing.T) {
	bound := map[string]string{}
	f := newFixture(t, map[string]module.Implementation{
		"db":    &syncModule{},
		"cache": &syncModule{},
		"api": &requiring{syncModule: syncModule{start: func(_ module.Host, m *module.Module) error {
			for prop, dep := range m.Dependencies() {
				bound[prop] = dep.Name()
			}
			return nil
		}}, required: []string{"db cache"}},
	})
	err := f.app.Start(context.Background(), []module.Descriptor{
		desc("db", nil),
		desc("cache", nil),
		{Name: "api", Locator: "api", Config: module.Config{"dbId": "db"}, Refs: map[string]string{"cache": "cache"}},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"db": "db", "cache": "cache"}, bound)
}

func TestReferenceBindsOnceTargetStarts(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{
		"x":      &syncModule{},
		"logger": &syncModule{},
	})
	err := f.app.Start(context.Background(), []module.Descriptor{
		{Name: "x", Locator: "x", Config: module.Config{"loggerId": "log"}},
		{Name: "log", Locator: "logger"},
	})
	require.NoError(t, err)
	x, ok := f.app.Module("x")
	require.True(t, ok)
	dep, ok := x.Dependency("logger")
	require.True(t, ok)
	log, _ := f.app.Module("log")
	require.Same(t, log, dep)
}

func TestWaiterIgnoresEmptyAndBlankNames(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{"a": &syncModule{}})
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil)}))

	fired := make(chan struct{}, 3)
	f.app.OnModuleReady(nil, func() { fired <- struct{}{} })
	f.app.OnModuleReady([]string{""}, func() { fired <- struct{}{} })
	f.app.OnModuleReady([]string{"a", "  "}, func() { fired <- struct{}{} })

	sentinel := make(chan struct{})
	f.app.OnModuleReady([]string{"a"}, func() { close(sentinel) })
	await(t, sentinel, "sentinel waiter")
	require.Len(t, fired, 0)
}

func TestWaiterResolvesAlreadyStartedModule(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{"a": &syncModule{}, "b": &syncModule{}})
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil), desc("b", nil)}))

	ready := make(chan struct{})
	f.app.OnModuleReady([]string{"a", "b"}, func() { close(ready) })
	await(t, ready, "waiter on started modules")

	pending := make(chan struct{})
	f.app.OnModuleReady([]string{"a", "missing"}, func() { close(pending) })
	never(t, pending, "waiter on an unknown module")
}

func TestWaiterFiresAfterLaterModuleStarts(t *testing.T) {
	ready := make(chan struct{})
	var f *fixture
	f = newFixture(t, map[string]module.Implementation{
		"a": &syncModule{start: func(host module.Host, _ *module.Module) error {
			host.OnModuleReady([]string{"b", "c"}, func() {
				f.events.add("ready")
				close(ready)
			})
			return nil
		}},
		"b": &syncModule{},
		"c": &syncModule{},
	})
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil), desc("b", nil), desc("c", nil)}))
	await(t, ready, "waiter")
	require.Greater(t, f.events.index("ready"), f.events.index("started:c"))
}

func TestOptionalGroups(t *testing.T) {
	var (
		metricsRan atomic.Bool
		partialRan atomic.Bool
		boundTo    atomic.Value
	)
	f := newFixture(t, map[string]module.Implementation{
		"api": &optional{groups: []module.OptionalGroup{
			module.Optional("metrics", func(_ module.Host, m *module.Module) {
				dep, _ := m.Dependency("metrics")
				boundTo.Store(dep.Name())
				metricsRan.Store(true)
			}),
			module.Optional("metrics tracer", func(module.Host, *module.Module) {
				partialRan.Store(true)
			}),
		}},
		"prom": &syncModule{},
	})
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{
		desc("api", module.Config{"metricsId": "prom"}),
		{Name: "prom", Locator: "prom"},
	}))

	sentinel := make(chan struct{})
	f.app.OnModuleReady([]string{"prom"}, func() { close(sentinel) })
	await(t, sentinel, "sentinel")
	require.True(t, metricsRan.Load())
	require.Equal(t, "prom", boundTo.Load())
	require.False(t, partialRan.Load())
}

func TestSetUpObserverSeesEveryOtherModuleOnce(t *testing.T) {
	obs := &observing{}
	f := newFixture(t, map[string]module.Implementation{
		"a":   &syncModule{},
		"obs": obs,
		"c":   &syncModule{},
	})
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil), desc("obs", nil), desc("c", nil)}))
	require.Equal(t, []string{"a", "c"}, obs.seen)
	require.Equal(t, []string{"obs", "obs"}, obs.observers)
}

func TestSetUpFailureStopsBeforeAnyStart(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{
		"a": &syncModule{},
		"b": &settingUp{err: errors.New("no disk")},
	})
	err := f.app.Start(context.Background(), []module.Descriptor{desc("a", nil), desc("b", nil)})
	var setUpErr *module.SetUpError
	require.ErrorAs(t, err, &setUpErr)
	require.Equal(t, "b", setUpErr.Module)
	require.Equal(t, -1, f.events.index("starting:a"))
	require.Equal(t, 1, f.events.count("failed:b"))
}

func TestAsyncTakesPrecedence(t *testing.T) {
	impl := &both{}
	f := newFixture(t, map[string]module.Implementation{"a": impl})
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil)}))
	require.True(t, impl.async.Load())
	require.False(t, impl.sync.Load())
}

func TestLoadFailures(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{"inert": struct{}{}})
	err := f.app.Start(context.Background(), []module.Descriptor{desc("inert", nil)})
	var invalid *module.InvalidModuleError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "inert", module.NameOf(err))

	f = newFixture(t, nil)
	err = f.app.Start(context.Background(), []module.Descriptor{{Name: "ghost", Locator: "nowhere"}})
	var loadErr *module.LoadError
	require.ErrorAs(t, err, &loadErr)
	require.ErrorIs(t, err, module.ErrUnknownLocator)
	require.Equal(t, 1, f.events.count("failed:ghost"))
}

func TestPanickingHooksBecomeFailures(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{
		"a": &syncModule{start: func(module.Host, *module.Module) error { panic("sync kaboom") }},
	})
	err := f.app.Start(context.Background(), []module.Descriptor{desc("a", nil)})
	var panicErr *module.PanicError
	require.ErrorAs(t, err, &panicErr)
	require.Equal(t, "a", module.NameOf(err))

	f = newFixture(t, map[string]module.Implementation{
		"b": &asyncModule{start: func(module.Host, *module.Module, func(error)) { panic("async kaboom") }},
	})
	err = f.app.Start(context.Background(), []module.Descriptor{desc("b", nil)})
	require.ErrorAs(t, err, &panicErr)
	require.Equal(t, "b", module.NameOf(err))
	require.ErrorContains(t, err, "async kaboom")

	f = newFixture(t, map[string]module.Implementation{"c": &syncModule{}})
	f.app.Broker().Subscribe(module.TopicStarted, func(pubsub.Message) { panic("observer kaboom") })
	err = f.app.Start(context.Background(), []module.Descriptor{desc("c", nil)})
	require.ErrorAs(t, err, &panicErr)
	require.Empty(t, module.NameOf(err))
	c, ok := f.app.Module("c")
	require.True(t, ok)
	require.Equal(t, module.StateStarted, c.State())
	require.Equal(t, 0, f.events.count("failed:c"))
	require.Equal(t, 1, f.events.count("failed:"))
	require.Equal(t, -1, f.events.index("app.started"))
}

func TestPanickingContinuationStopsLaterModules(t *testing.T) {
	var bStarted atomic.Bool
	f := newFixture(t, map[string]module.Implementation{
		"api": &optional{groups: []module.OptionalGroup{
			module.Optional("self", func(module.Host, *module.Module) { panic("handler kaboom") }),
		}},
		"b": &syncModule{start: func(module.Host, *module.Module) error {
			bStarted.Store(true)
			return nil
		}},
	})
	err := f.app.Start(context.Background(), []module.Descriptor{
		desc("api", module.Config{"selfId": "api"}),
		desc("b", nil),
	})
	var panicErr *module.PanicError
	require.ErrorAs(t, err, &panicErr)
	require.ErrorContains(t, err, "handler kaboom")
	require.Empty(t, module.NameOf(err))
	await(t, f.app.Done(), "app stop")

	require.False(t, bStarted.Load())
	b, ok := f.app.Module("b")
	require.False(t, ok, "b must never become visible")
	require.Nil(t, b)
	api, _ := f.app.Module("api")
	require.Equal(t, module.StateStarted, api.State())
	require.Equal(t, 0, f.events.count("failed:api"))
	require.Equal(t, -1, f.events.index("starting:b"))
	require.Equal(t, -1, f.events.index("app.started"))
}

func TestAsyncStartTimesOut(t *testing.T) {
	late := make(chan func(error), 1)
	f := newFixture(t, map[string]module.Implementation{
		"slow": &asyncModule{start: func(_ module.Host, _ *module.Module, done func(error)) {
			late <- done
		}},
	})
	f.app.opts.ModuleStartTimeout = 30 * time.Millisecond

	err := f.app.Start(context.Background(), []module.Descriptor{desc("slow", nil)})
	var timeout *module.StartTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, "slow", timeout.Module)
	require.Equal(t, 30*time.Millisecond, timeout.Timeout)

	done := <-late
	done(nil)
	require.ErrorAs(t, f.app.Err(), &timeout)
	m, _ := f.app.Module("slow")
	require.Equal(t, module.StateFailed, m.State())
}

func TestTimeoutFiresWhileLoopIsBlocked(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, map[string]module.Implementation{
		"hog": &asyncModule{start: func(_ module.Host, _ *module.Module, done func(error)) {
			<-release
			done(nil)
		}},
	})
	f.app.opts.ModuleStartTimeout = 20 * time.Millisecond
	defer close(release)

	result := make(chan error, 1)
	go func() { result <- f.app.Start(context.Background(), []module.Descriptor{desc("hog", nil)}) }()
	select {
	case err := <-result:
		var timeout *module.StartTimeoutError
		require.ErrorAs(t, err, &timeout)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout did not fire while the loop was blocked")
	}
}

func TestRepeatedCallbackIsLoggedAndIgnored(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(t, map[string]module.Implementation{
		"twice": &asyncModule{start: func(_ module.Host, _ *module.Module, done func(error)) {
			done(nil)
			done(errors.New("second"))
		}},
		"next": &syncModule{},
	}, WithLogger(zap.New(core)))

	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("twice", nil), desc("next", nil)}))
	ignored := logs.FilterMessage("Start callback ignored").All()
	require.Len(t, ignored, 1)
	require.Equal(t, "twice", ignored[0].ContextMap()["module"])
	require.Equal(t, 1, f.events.count("started:twice"))
}

func TestStartHonoursContext(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{
		"stuck": &asyncModule{start: func(module.Host, *module.Module, func(error)) {}},
	})
	f.app.opts.ModuleStartTimeout = time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.app.Start(ctx, []module.Descriptor{desc("stuck", nil)})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartOnlyOnce(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{"a": &syncModule{}})
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil)}))
	require.ErrorIs(t, f.app.Start(context.Background(), nil), ErrAlreadyStarted)
}

func TestMainExitsOnFailure(t *testing.T) {
	code := -1
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixture(t, map[string]module.Implementation{
		"bad": &syncModule{start: func(module.Host, *module.Module) error { return errors.New("boom") }},
	}, WithExit(func(c int) { code = c }), WithLogger(zap.New(core)))

	err := f.app.Main(context.Background(), []module.Descriptor{desc("bad", nil)})
	require.Error(t, err)
	require.Equal(t, 1, code)
	entries := logs.FilterMessage("Failed to start").All()
	require.Len(t, entries, 1)
	require.Equal(t, "bad", entries[0].ContextMap()["module"])
}

func TestMainDoesNotExitOnSuccess(t *testing.T) {
	code := -1
	f := newFixture(t, map[string]module.Implementation{"a": &syncModule{}}, WithExit(func(c int) { code = c }))
	require.NoError(t, f.app.Main(context.Background(), []module.Descriptor{desc("a", nil)}))
	require.Equal(t, -1, code)
}

func TestPanicAfterBootStopsApp(t *testing.T) {
	f := newFixture(t, map[string]module.Implementation{"a": &syncModule{}})
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil)}))
	f.app.OnModuleReady([]string{"a"}, func() { panic("late") })
	await(t, f.app.Done(), "app stop")
	var panicErr *module.PanicError
	require.ErrorAs(t, f.app.Err(), &panicErr)
}

func TestModuleLoggersCarryName(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixture(t, map[string]module.Implementation{
		"a": &syncModule{start: func(_ module.Host, m *module.Module) error {
			m.Logger().Info("hello")
			return nil
		}},
	}, WithLogger(zap.New(core)))
	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{desc("a", nil)}))
	entries := logs.FilterMessage("hello").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	require.Equal(t, "a", ctx["module"])
	require.Equal(t, "test", ctx["app"])
	require.Equal(t, f.app.RunID(), ctx["run"])
}

func TestScriptModuleFromRootPath(t *testing.T) {
	f := newFixture(t, nil)
	src := "package main\n\nfunc DefaultConfig() map[string]any { return map[string]any{\"mode\": \"script\"} }\n\nfunc Start(config map[string]any) error { return nil }\n"
	require.NoError(t, os.WriteFile(filepath.Join(f.app.Options().RootPath, "job.go"), []byte(src), 0o644))

	require.NoError(t, f.app.Start(context.Background(), []module.Descriptor{{Name: "job", Locator: "./job.go"}}))
	job, ok := f.app.Module("job")
	require.True(t, ok)
	require.Equal(t, "script", job.Config().String("mode"))
	require.Equal(t, filepath.Join(f.app.Options().RootPath, "x"), f.app.PathTo("x"))
}

type requiring struct {
	syncModule
	required []string
}

func (r *requiring) RequiredModules() []string { return r.required }

type optional struct {
	syncModule
	groups []module.OptionalGroup
}

func (o *optional) OptionalModules() []module.OptionalGroup { return o.groups }

type observing struct {
	syncModule
	seen      []string
	observers []string
}

func (o *observing) OnModuleSetUp(_ module.Host, info module.SetUpInfo) {
	o.seen = append(o.seen, info.SetUpModule.Name())
	o.observers = append(o.observers, info.Module.Name())
}

type settingUp struct {
	syncModule
	err error
}

func (s *settingUp) SetUp(module.Host, *module.Module) error { return s.err }

type both struct {
	sync  atomic.Bool
	async atomic.Bool
}

func (b *both) Start(module.Host, *module.Module) error {
	b.sync.Store(true)
	return nil
}

func (b *both) StartAsync(_ module.Host, _ *module.Module, done func(error)) {
	b.async.Store(true)
	done(nil)
}
