// Package store contains the domain stores fed by the MQTT bus.
//
// Each store owns one aggregate: vitals history (HealthStore), position
// tracking (LocationStore), device presence (DeviceStore),
// acknowledgements (AckStore), tag telemetry (TagStore), and anchor
// configuration (AnchorStore). Stores are constructed from config, then
// wired with an explicit Start(transport) call that registers their
// pattern routes; there is no hidden registration at import time.
//
// # Payload Normalization
//
// Gateway payloads spell the same logical field several ways. Every
// store reads fields through the alias tables in normalize.go, so
// tolerating a new spelling is a table edit, never a parser change.
// A payload missing a required field is logged and dropped; stores never
// propagate errors into the dispatch loop.
//
// # Liveness
//
// Stores that answer "is this device online" (location, device) never
// persist an online flag. Liveness is computed at query time from the
// record's timestamp against an expiry threshold, so devices go stale
// with no sweeper goroutine and no missed transitions.
//
// All stores are safe for concurrent use. Processing runs synchronously
// on the bus dispatch goroutine and performs no blocking I/O; the
// optional telemetry sink must itself be non-blocking.
package store
