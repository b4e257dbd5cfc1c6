// Package module defines what a bootable module is: its declaration
// (Descriptor), the capability interfaces an implementation may satisfy, the
// runtime record the orchestrator drives through its lifecycle (Module), the
// locator registry used to resolve compiled-in implementations, and the error
// kinds raised while booting.
//
// An implementation must satisfy Starter or AsyncStarter. Every other hook is
// optional and discovered with a type assertion:
//
//	type server struct{}
//
//	func (server) DefaultConfig() module.Config { return module.Config{"addr": ":8080"} }
//	func (server) RequiredModules() []string    { return []string{"logbook"} }
//	func (server) StartAsync(host module.Host, m *module.Module, done func(error)) {
//		go func() { done(listen(m.Config().String("addr"))) }()
//	}
package module
