package app

import (
	"sync"
	"time"

	"github.com/kingrea/latticeboot/internal/module"
)

// startAsync arms the start timer, then calls the module's StartAsync. The
// first callback that beats the timer completes the module on the loop.
// Later or repeated callbacks are logged and ignored.
func (a *App) startAsync(m *module.Module, starter module.AsyncStarter, complete func(error)) {
	timeout := a.opts.ModuleStartTimeout
	var (
		once  sync.Once
		timer *time.Timer
	)
	claim := func() bool {
		claimed := false
		once.Do(func() { claimed = true })
		return claimed
	}
	timer = time.AfterFunc(timeout, func() {
		if !claim() {
			return
		}
		a.abort(m, &module.StartTimeoutError{Module: m.Name(), Timeout: timeout})
	})
	done := func(err error) {
		if !claim() {
			m.Logger().Warnw("Start callback ignored", "reason", "already completed or timed out", "error", err)
			return
		}
		timer.Stop()
		if !a.loop.post(func() { complete(err) }) {
			m.Logger().Debug("Start callback arrived after the app stopped")
		}
	}
	if err := callHook(func() error {
		starter.StartAsync(a, m, done)
		return nil
	}); err != nil {
		timer.Stop()
		claim()
		complete(err)
	}
}

// abort fails m from outside the loop. The failure is reported to Start right
// away so a module blocking the loop cannot hold it back; the failed event is
// published on the loop if it is still running.
func (a *App) abort(m *module.Module, err error) {
	m.Fail(err)
	if !a.failed.CompareAndSwap(false, true) {
		return
	}
	a.loop.post(func() { a.reportFailure(m.Name(), m, err) })
	a.finish(err)
}
