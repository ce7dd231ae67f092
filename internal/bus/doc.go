// Package bus provides the MQTT message bus for UWB gateway traffic.
//
// The bus owns a single broker connection and turns the gateway fleet's
// raw MQTT stream into typed in-process delivery. Broker subscriptions
// are never managed by hand: the bus listens to gateway registry events
// and keeps its subscription set equal to the union of all registered
// gateways' topics, with reference counting so a topic shared by two
// gateways survives the removal of one.
//
// # Message Flow
//
//	broker -> decode JSON -> resolve gateway -> Message envelope
//	       -> ring buffer -> pattern routes (priority order)
//	       -> exact-topic listeners
//
// The ring buffer always receives a message before any handler runs, so
// a handler can rely on RecentMessages including the message it is
// currently processing.
//
// # Key Types
//
//   - Bus: the concrete transport. Construct with New, wire with Start.
//   - Transport: the interface domain stores consume.
//   - Router: regex-based topic dispatch with priorities.
//   - Message: the envelope handlers receive, including the resolved
//     gateway and the decoded payload.
//
// # Usage
//
//	registry := gateway.NewRegistry()
//	b := bus.New(cfg.MQTT, registry, logger)
//	defer b.Stop()
//
//	b.SubscribePattern("vitals", bus.PatternHealth, 10, func(msg bus.Message) {
//		// ...
//	})
//	if err := b.Start(); err != nil {
//		// ...
//	}
//
// Handlers run on the broker client's receive goroutine and must not
// block; hand off to a channel or goroutine for slow work.
package bus
