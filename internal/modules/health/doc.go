// Package health provides the "health" builtin: an HTTP listener that reports
// boot progress.
//
// Configuration:
//   - addr: listen address, default 127.0.0.1:0 (an ephemeral port). The bound
//     address is available from Module.Addr once started.
//   - metricsId: optional reference to a module whose implementation exposes
//     Handler() http.Handler (the "metrics" builtin does). When it starts,
//     its handler is mounted at /metrics.
//
// Routes:
//   - GET /health returns a JSON Report with the app identity, whether every
//     module has started, and the state of each registered module.
//   - GET /metrics is 404 until a metrics module is bound.
//
// The module starts asynchronously: it reports ready once the listener is
// bound, or fails with the listen error.
package health
