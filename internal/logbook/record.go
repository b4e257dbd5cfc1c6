package logbook

import (
	"fmt"
	"strings"

	"github.com/kingrea/latticeboot/internal/pubsub"
)

// Record journals messages on the given topics, or on every topic when none
// are given, until the returned subscription is cancelled. Topics ending in
// ".failed" are written at error level.
func (l *Logbook) Record(broker *pubsub.Broker, topics ...string) *pubsub.Subscription {
	keep := make(map[string]bool, len(topics))
	for _, topic := range topics {
		keep[topic] = true
	}
	return broker.SubscribeAll(func(msg pubsub.Message) {
		if len(keep) > 0 && !keep[msg.Topic] {
			return
		}
		level := LevelInfo
		if strings.HasSuffix(msg.Topic, ".failed") {
			level = LevelError
		}
		l.Append(level, Format(msg))
	})
}

// Format renders a message as "<topic> <payload>".
func Format(msg pubsub.Message) string {
	if msg.Payload == nil {
		return msg.Topic
	}
	return fmt.Sprintf("%s %v", msg.Topic, msg.Payload)
}
