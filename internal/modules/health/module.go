package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/pubsub"
)

const (
	// Locator registers the module in the package registry.
	Locator = "health"

	defaultAddr = "127.0.0.1:0"
)

// HandlerProvider is implemented by modules that can be mounted at /metrics.
type HandlerProvider interface {
	Handler() http.Handler
}

// ModuleStatus is one entry of a Report.
type ModuleStatus struct {
	Name    string       `json:"name"`
	Locator string       `json:"locator"`
	State   module.State `json:"state"`
}

// Report is the /health response body.
type Report struct {
	App     string         `json:"app"`
	Env     string         `json:"env"`
	Ready   bool           `json:"ready"`
	Modules []ModuleStatus `json:"modules"`
}

// Module serves the health endpoint.
type Module struct {
	host    module.Host
	router  *mux.Router
	server  *http.Server
	metrics atomic.Value // http.Handler
	ready   atomic.Bool
	sub     *pubsub.Subscription

	mu   sync.Mutex
	addr net.Addr
}

// Register installs the health factory.
func Register(reg *module.Registry) {
	if reg == nil {
		return
	}
	reg.MustRegister(Locator, func() (module.Implementation, error) {
		return New(), nil
	})
}

// New constructs the module with its routes.
func New() *Module {
	h := &Module{router: mux.NewRouter()}
	h.router.HandleFunc("/health", h.serveHealth).Methods(http.MethodGet)
	h.router.HandleFunc("/metrics", h.serveMetrics).Methods(http.MethodGet)
	return h
}

// DefaultConfig implements module.Defaulter.
func (h *Module) DefaultConfig() module.Config {
	return module.Config{"addr": defaultAddr}
}

// OptionalModules implements module.OptionalDependent.
func (h *Module) OptionalModules() []module.OptionalGroup {
	return []module.OptionalGroup{
		module.Optional("metrics", h.mountMetrics),
	}
}

func (h *Module) mountMetrics(_ module.Host, m *module.Module) {
	dep, ok := m.Dependency("metrics")
	if !ok {
		return
	}
	provider, ok := dep.Impl().(HandlerProvider)
	if !ok {
		m.Logger().Warnw("Metrics module has no handler", "module", dep.Name())
		return
	}
	h.metrics.Store(provider.Handler())
	m.Logger().Infow("Mounted metrics", "module", dep.Name())
}

// StartAsync binds the listener and reports ready once it accepts
// connections.
func (h *Module) StartAsync(host module.Host, m *module.Module, done func(error)) {
	h.host = host
	h.sub = host.Broker().Subscribe(module.TopicAppStarted, func(pubsub.Message) {
		h.ready.Store(true)
	})
	addr := m.Config().String("addr")
	if addr == "" {
		addr = defaultAddr
	}
	go func() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			done(err)
			return
		}
		h.mu.Lock()
		h.addr = ln.Addr()
		h.server = &http.Server{Handler: h.router, ReadHeaderTimeout: 5 * time.Second}
		srv := h.server
		h.mu.Unlock()
		m.Logger().Infow("Listening", "addr", ln.Addr().String())
		done(nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.Logger().Errorw("Health server stopped", "error", err)
		}
	}()
}

// Addr returns the bound address, or nil before start.
func (h *Module) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

// Shutdown stops the listener.
func (h *Module) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	srv := h.server
	h.mu.Unlock()
	if h.sub != nil {
		h.sub.Cancel()
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Snapshot builds the current report.
func (h *Module) Snapshot() Report {
	report := Report{Ready: h.ready.Load(), Modules: []ModuleStatus{}}
	if h.host == nil {
		return report
	}
	report.App = h.host.ID()
	report.Env = h.host.Env()
	for _, m := range h.host.Modules() {
		report.Modules = append(report.Modules, ModuleStatus{
			Name:    m.Name(),
			Locator: m.Locator(),
			State:   m.State(),
		})
	}
	return report
}

func (h *Module) serveHealth(w http.ResponseWriter, _ *http.Request) {
	report := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if !report.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}

func (h *Module) serveMetrics(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.metrics.Load().(http.Handler)
	if !ok {
		http.NotFound(w, r)
		return
	}
	handler.ServeHTTP(w, r)
}
