// Package telemetry provides the "metrics" builtin, which feeds a Prometheus
// collector from lifecycle events.
package telemetry

import (
	"context"
	"net/http"

	"github.com/kingrea/latticeboot/internal/config"
	"github.com/kingrea/latticeboot/internal/metrics"
	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/pubsub"
)

// Locator registers the module in the package registry.
const Locator = "metrics"

// Module owns a metrics.Collector.
type Module struct {
	namespace string
	collector *metrics.Collector
	subs      []*pubsub.Subscription
}

// Register installs the factory. namespace is the default metric namespace.
func Register(reg *module.Registry, namespace string) {
	if reg == nil {
		return
	}
	reg.MustRegister(Locator, func() (module.Implementation, error) {
		return New(namespace), nil
	})
}

// New constructs the module.
func New(namespace string) *Module {
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}
	return &Module{namespace: namespace}
}

// DefaultConfig implements module.Defaulter.
func (t *Module) DefaultConfig() module.Config {
	return module.Config{"namespace": t.namespace}
}

// SetUp builds the collector and starts observing. Observation begins during
// set-up so every module's start is measured.
func (t *Module) SetUp(host module.Host, m *module.Module) error {
	ns := m.Config().String("namespace")
	if ns == "" {
		ns = t.namespace
	}
	t.collector = metrics.New(ns)
	t.subs = t.collector.Observe(host.Broker())
	return nil
}

// Start implements module.Starter.
func (t *Module) Start(_ module.Host, m *module.Module) error {
	m.Logger().Debugw("Collecting boot metrics", "namespace", m.Config().String("namespace"))
	return nil
}

// Shutdown stops observing lifecycle events.
func (t *Module) Shutdown(context.Context) error {
	for _, sub := range t.subs {
		sub.Cancel()
	}
	t.subs = nil
	return nil
}

// Handler serves the collected metrics.
func (t *Module) Handler() http.Handler {
	if t.collector == nil {
		return http.NotFoundHandler()
	}
	return t.collector.Handler()
}
