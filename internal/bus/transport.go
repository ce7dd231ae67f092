package bus

import "regexp"

// Transport is the consumer-facing surface of the bus. Domain stores
// depend on this interface rather than the concrete Bus, which keeps
// them testable against a fake transport and indifferent to the broker
// technology behind it.
type Transport interface {
	// Start wires the transport to its gateway registry and begins
	// connecting.
	Start() error

	// Stop detaches from the registry and closes the connection.
	Stop()

	// Status returns the current connection status.
	Status() Status

	// OnStatus registers a status listener, invoking it immediately with
	// the current status. The returned function removes the listener.
	OnStatus(listener StatusListener) func()

	// Subscribe registers a handler for one exact topic.
	Subscribe(topic string, handler Handler) func()

	// SubscribePattern registers a pattern route with the given priority.
	SubscribePattern(name string, pattern *regexp.Regexp, priority int, handler Handler) func()

	// Publish sends a message. Returns ErrNotConnected when offline.
	Publish(topic string, payload any, qos byte, retained bool) error

	// RecentMessages returns buffered messages newest first.
	RecentMessages(filter *Filter, limit int) []Message

	// LatestMessage returns the most recent buffered message.
	LatestMessage() (Message, bool)

	// GetStats returns a snapshot of transport activity.
	GetStats() Stats
}

// Compile-time check that Bus implements Transport.
var _ Transport = (*Bus)(nil)
