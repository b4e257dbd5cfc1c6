// Package metrics records boot progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/pubsub"
)

// Start modes used as the "mode" label.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Collector owns a private registry so several apps can coexist in one
// process.
type Collector struct {
	registry *prometheus.Registry

	StartDuration *prometheus.HistogramVec
	Failures      *prometheus.CounterVec
	Started       prometheus.Gauge
	BootDuration  prometheus.Gauge

	mu       sync.Mutex
	starting map[string]time.Time
	now      func() time.Time
}

// New registers the boot metrics under namespace.
func New(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		StartDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "module_start_duration_seconds",
				Help:      "Time from a module entering starting to reaching started",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"module", "mode"},
		),
		Failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "module_failures_total",
				Help:      "Modules that failed to load, set up or start",
			},
			[]string{"module"},
		),
		Started: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "modules_started",
			Help:      "Number of modules in the started state",
		}),
		BootDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "boot_duration_seconds",
			Help:      "Time from process start until every module started",
		}),
		starting: map[string]time.Time{},
		now:      time.Now,
	}
}

// Registry exposes the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ModuleStarting notes when name began starting.
func (c *Collector) ModuleStarting(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting[name] = c.now()
}

// ModuleStarted records the start duration of name.
func (c *Collector) ModuleStarted(name, mode string) {
	c.mu.Lock()
	began, ok := c.starting[name]
	delete(c.starting, name)
	c.mu.Unlock()
	if ok {
		c.StartDuration.WithLabelValues(name, mode).Observe(c.now().Sub(began).Seconds())
	}
	c.Started.Inc()
}

// ModuleFailed counts a failure of name.
func (c *Collector) ModuleFailed(name string) {
	c.mu.Lock()
	delete(c.starting, name)
	c.mu.Unlock()
	c.Failures.WithLabelValues(name).Inc()
}

// Observe feeds the collector from lifecycle events until the returned
// subscriptions are cancelled.
func (c *Collector) Observe(broker *pubsub.Broker) []*pubsub.Subscription {
	return []*pubsub.Subscription{
		broker.Subscribe(module.TopicStarting, func(msg pubsub.Message) {
			if ev, ok := msg.Payload.(module.ModuleEvent); ok {
				c.ModuleStarting(ev.Module.Name())
			}
		}),
		broker.Subscribe(module.TopicStarted, func(msg pubsub.Message) {
			if ev, ok := msg.Payload.(module.ModuleEvent); ok {
				mode := ModeSync
				if module.IsAsync(ev.Module.Impl()) {
					mode = ModeAsync
				}
				c.ModuleStarted(ev.Module.Name(), mode)
			}
		}),
		broker.Subscribe(module.TopicFailed, func(msg pubsub.Message) {
			if ev, ok := msg.Payload.(module.FailedEvent); ok {
				c.ModuleFailed(ev.Name)
			}
		}),
		broker.Subscribe(module.TopicAppStarted, func(msg pubsub.Message) {
			if ev, ok := msg.Payload.(module.StartedEvent); ok {
				c.BootDuration.Set(ev.Elapsed.Seconds())
			}
		}),
	}
}
