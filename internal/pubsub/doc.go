// Package pubsub is a small synchronous topic broker. Publish delivers a
// message to every subscriber of the topic, in subscription order, before it
// returns. Wildcard subscribers registered with SubscribeAll receive every
// message after the topic's own subscribers.
package pubsub
