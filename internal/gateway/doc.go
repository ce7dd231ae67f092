// Package gateway provides the Gateway Registry for the UWB telemetry core.
//
// The registry is the source of truth for known IoT gateways and the MQTT
// topics each one uses. A gateway's topic set is a pure function of its
// identity (DeriveTopics): cloud-assigned topics are used verbatim when
// present, otherwise topics are synthesised from the gateway's MAC suffix
// following the UWB/GW<suffix>_<Channel> firmware convention.
//
// # Architecture
//
//	REST sync / discovery ──▶ Registry ──events──▶ MQTT bus (subscribe/unsubscribe)
//	                             │
//	                             ├── queries ──▶ bus (FindByTopic), stores
//	                             └── Repository (SQLite) via composition root
//
// # Key Types
//
//   - Gateway: identity, status and optional cloud topic configuration
//   - TopicConfig: the fixed set of named channels per gateway
//   - Registry: lifecycle (register/unregister/update), queries, events
//   - Repository: SQLite persistence so registrations survive restarts
//
// # Usage
//
//	registry := gateway.NewRegistry()
//	registry.SetLogger(log)
//
//	off := registry.On(func(ev gateway.Event) {
//	    // react to topic changes
//	})
//	defer off()
//
//	err := registry.Register(&gateway.Gateway{
//	    ID:   "gw1",
//	    Name: "GwF9E516B8_197",
//	})
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Events fan out synchronously
// but outside the registry lock, so listeners may call back into it.
package gateway
