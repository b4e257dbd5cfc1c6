package app

import (
	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/pubsub"
)

// setUpBroadcast delivers set-up notifications to observers: past modules
// are replayed from history, later ones arrive through the setUp topic.
type setUpBroadcast struct {
	host    module.Host
	broker  *pubsub.Broker
	history []*module.Module
}

// record appends m to the history. Call it after publishing m's setUp event.
func (b *setUpBroadcast) record(m *module.Module) {
	b.history = append(b.history, m)
}

// observe replays history to obs and subscribes it to later set-ups. obs
// never hears about its own module.
func (b *setUpBroadcast) observe(m *module.Module, obs module.SetUpObserver) *pubsub.Subscription {
	for _, past := range b.history {
		if past != m {
			obs.OnModuleSetUp(b.host, module.SetUpInfo{Module: m, SetUpModule: past})
		}
	}
	return b.broker.Subscribe(module.TopicSetUp, func(msg pubsub.Message) {
		ev, ok := msg.Payload.(module.ModuleEvent)
		if !ok || ev.Module == m {
			return
		}
		obs.OnModuleSetUp(b.host, module.SetUpInfo{Module: m, SetUpModule: ev.Module})
	})
}
