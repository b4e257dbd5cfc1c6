package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kingrea/latticeboot/internal/config"
	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/pubsub"
)

type syncModule struct {
	start func(host module.Host, m *module.Module) error
}

func (s *syncModule) Start(host module.Host, m *module.Module) error {
	if s.start == nil {
		return nil
	}
	return s.start(host, m)
}

type asyncModule struct {
	start func(host module.Host, m *module.Module, done func(error))
}

func (s *asyncModule) StartAsync(host module.Host, m *module.Module, done func(error)) {
	if s.start == nil {
		done(nil)
		return
	}
	s.start(host, m, done)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) index(event string) int {
	for i, e := range r.list() {
		if e == event {
			return i
		}
	}
	return -1
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.list() {
		if e == event {
			n++
		}
	}
	return n
}

var shortTopics = map[string]string{
	module.TopicSettingUp:  "settingUp",
	module.TopicSetUp:      "setUp",
	module.TopicStarting:   "starting",
	module.TopicStarted:    "started",
	module.TopicFailed:     "failed",
	module.TopicAppStarted: "app.started",
}

// watch records lifecycle events as "<short topic>:<module>".
func watch(a *App) *recorder {
	r := &recorder{}
	a.Broker().SubscribeAll(func(msg pubsub.Message) {
		short, ok := shortTopics[msg.Topic]
		if !ok {
			return
		}
		switch ev := msg.Payload.(type) {
		case module.ModuleEvent:
			r.add(short + ":" + ev.Module.Name())
		case module.FailedEvent:
			r.add(short + ":" + ev.Name)
		default:
			r.add(short)
		}
	})
	return r
}

type fixture struct {
	app      *App
	packages *module.Registry
	events   *recorder
}

func newFixture(t *testing.T, impls map[string]module.Implementation, options ...Option) *fixture {
	t.Helper()
	packages := module.NewRegistry()
	for locator, impl := range impls {
		require.NoError(t, packages.RegisterValue(locator, impl))
	}
	opts := config.Options{
		ID:                 "test",
		RootPath:           t.TempDir(),
		ModuleStartTimeout: 200 * time.Millisecond,
	}
	all := append([]Option{WithPackages(packages), WithExit(func(int) {})}, options...)
	a := New(opts, all...)
	t.Cleanup(func() { _ = a.Close() })
	return &fixture{app: a, packages: packages, events: watch(a)}
}

func desc(name string, cfg module.Config) module.Descriptor {
	return module.Descriptor{Name: name, Locator: name, Config: cfg}
}

func await(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func never(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("%s should not have happened", what)
	case <-time.After(50 * time.Millisecond):
	}
}
