package app

import (
	"strings"

	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/pubsub"
)

// waitFor schedules fn once every name has started. It must run on the loop.
// An empty list or a blank name never fires.
func (a *App) waitFor(names []string, fn func()) {
	if len(names) == 0 || fn == nil {
		return
	}
	remaining := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if !a.registry.IsStarted(name) {
			remaining[name] = struct{}{}
		}
	}
	if len(remaining) == 0 {
		a.loop.post(fn)
		return
	}
	var sub *pubsub.Subscription
	sub = a.broker.Subscribe(module.TopicStarted, func(msg pubsub.Message) {
		ev, ok := msg.Payload.(module.ModuleEvent)
		if !ok {
			return
		}
		delete(remaining, ev.Module.Name())
		if len(remaining) == 0 {
			sub.Cancel()
			a.loop.post(fn)
		}
	})
}
