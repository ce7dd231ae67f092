package gateway

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventType identifies a registry lifecycle event.
type EventType string

// Registry event types.
const (
	EventAdded   EventType = "gateway_added"
	EventRemoved EventType = "gateway_removed"
	EventUpdated EventType = "gateway_updated"
)

// Event describes a change to the registry's gateway set.
// Topics carries the gateway's topic config for added/removed events;
// OldTopics/NewTopics are populated for updated events.
type Event struct {
	Type      EventType
	Gateway   Gateway
	Topics    TopicConfig
	OldTopics TopicConfig
	NewTopics TopicConfig
}

// EventListener receives registry events. Listeners are invoked
// synchronously; a panicking listener is recovered and logged and never
// affects other listeners or the caller.
type EventListener func(Event)

// Registry is the source of truth for known gateways and their derived
// topic sets. It is the single writer of gateway/topic state: the bus
// and the stores only consume it through events and queries.
//
// All public methods are thread-safe.
type Registry struct {
	mu        sync.RWMutex
	gateways  map[string]*Gateway
	topics    map[string]TopicConfig
	listeners map[string]EventListener
	logger    Logger
}

// NewRegistry creates an empty gateway registry.
func NewRegistry() *Registry {
	return &Registry{
		gateways:  make(map[string]*Gateway),
		topics:    make(map[string]TopicConfig),
		listeners: make(map[string]EventListener),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Register adds a gateway and its derived topics to the registry and
// emits a gateway_added event. Registering an already-known ID delegates
// to Update.
//
// Returns ErrTopicConflict when one of the gateway's derived topics is
// already owned by a different gateway.
func (r *Registry) Register(gw *Gateway) error {
	if gw == nil || gw.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidGateway)
	}

	r.mu.Lock()
	if _, exists := r.gateways[gw.ID]; exists {
		r.mu.Unlock()
		r.logger.Debug("gateway already registered, updating", "id", gw.ID)
		return r.Update(gw)
	}

	topics := DeriveTopics(gw)
	if ownerID, topic := r.conflictLocked(gw.ID, topics); ownerID != "" {
		r.mu.Unlock()
		return fmt.Errorf("%w: topic %q owned by gateway %q", ErrTopicConflict, topic, ownerID)
	}

	stored := gw.Copy()
	r.gateways[gw.ID] = stored
	r.topics[gw.ID] = topics
	r.mu.Unlock()

	r.logger.Info("gateway registered",
		"id", gw.ID,
		"name", gw.Name,
		"topics", topics.Values(),
	)

	r.emit(Event{Type: EventAdded, Gateway: *stored.Copy(), Topics: topics})
	return nil
}

// Unregister removes a gateway and its topics and emits a
// gateway_removed event. Unknown IDs are logged as a warning and
// treated as a no-op: unregistering twice never emits a second event.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	gw, ok := r.gateways[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("unregister of unknown gateway", "id", id)
		return
	}
	topics := r.topics[id]
	delete(r.gateways, id)
	delete(r.topics, id)
	r.mu.Unlock()

	r.logger.Info("gateway unregistered", "id", id, "name", gw.Name)

	r.emit(Event{Type: EventRemoved, Gateway: *gw.Copy(), Topics: topics})
}

// Update recomputes a gateway's topics, replaces the stored gateway and
// emits a gateway_updated event carrying the old and new topic configs.
// Updating an unknown ID falls back to Register.
func (r *Registry) Update(gw *Gateway) error {
	if gw == nil || gw.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidGateway)
	}

	r.mu.Lock()
	if _, exists := r.gateways[gw.ID]; !exists {
		r.mu.Unlock()
		return r.Register(gw)
	}

	oldTopics := r.topics[gw.ID]
	newTopics := DeriveTopics(gw)
	if ownerID, topic := r.conflictLocked(gw.ID, newTopics); ownerID != "" {
		r.mu.Unlock()
		return fmt.Errorf("%w: topic %q owned by gateway %q", ErrTopicConflict, topic, ownerID)
	}

	stored := gw.Copy()
	r.gateways[gw.ID] = stored
	r.topics[gw.ID] = newTopics
	r.mu.Unlock()

	added, removed := oldTopics.Diff(newTopics)
	r.logger.Info("gateway updated",
		"id", gw.ID,
		"name", gw.Name,
		"topics_added", added,
		"topics_removed", removed,
	)

	r.emit(Event{
		Type:      EventUpdated,
		Gateway:   *stored.Copy(),
		OldTopics: oldTopics,
		NewTopics: newTopics,
	})
	return nil
}

// RegisterAll registers gateways sequentially. A gateway that fails
// (topic conflict, missing ID) is logged and skipped; the rest are
// still applied since registrations are independent per ID.
func (r *Registry) RegisterAll(gws []Gateway) {
	r.logger.Info("registering gateways", "count", len(gws))
	for i := range gws {
		gw := gws[i]
		if err := r.Register(&gw); err != nil {
			r.logger.Warn("skipping gateway registration",
				"id", gw.ID,
				"error", err,
			)
		}
	}
}

// UnregisterAll unregisters the given gateway IDs sequentially.
func (r *Registry) UnregisterAll(ids []string) {
	r.logger.Info("unregistering gateways", "count", len(ids))
	for _, id := range ids {
		r.Unregister(id)
	}
}

// Gateway returns a copy of the gateway with the given ID.
func (r *Registry) Gateway(id string) (*Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gw, ok := r.gateways[id]
	if !ok {
		return nil, false
	}
	return gw.Copy(), true
}

// AllGateways returns copies of every registered gateway, ordered by ID.
func (r *Registry) AllGateways() []Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Gateway, 0, len(r.gateways))
	for _, id := range r.sortedIDsLocked() {
		out = append(out, *r.gateways[id].Copy())
	}
	return out
}

// Topics returns the derived topic config for a gateway ID.
func (r *Registry) Topics(id string) (TopicConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tc, ok := r.topics[id]
	return tc, ok
}

// AllActiveTopics returns the deduplicated union of every gateway's
// non-empty topic values, sorted for deterministic iteration.
func (r *Registry) AllActiveTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allActiveTopicsLocked()
}

func (r *Registry) allActiveTopicsLocked() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tc := range r.topics {
		for _, t := range tc.Values() {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}

// FindByTopic returns the gateway owning the exact topic string, or nil.
// Lookup order is by gateway ID so the first hit is deterministic.
func (r *Registry) FindByTopic(topic string) *Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.sortedIDsLocked() {
		if r.topics[id].Contains(topic) {
			return r.gateways[id].Copy()
		}
	}
	return nil
}

// FindByTopicPattern returns every gateway with at least one topic
// matching the pattern, ordered by gateway ID.
func (r *Registry) FindByTopicPattern(pattern *regexp.Regexp) []Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Gateway
	for _, id := range r.sortedIDsLocked() {
		for _, t := range r.topics[id].Values() {
			if pattern.MatchString(t) {
				out = append(out, *r.gateways[id].Copy())
				break
			}
		}
	}
	return out
}

// On registers an event listener and returns an idempotent unsubscribe
// closure.
func (r *Registry) On(listener EventListener) func() {
	id := uuid.NewString()

	r.mu.Lock()
	r.listeners[id] = listener
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Clear empties the gateway and topic maps but preserves listeners:
// "no gateways" is a different condition from "nobody is listening".
func (r *Registry) Clear() {
	r.mu.Lock()
	r.gateways = make(map[string]*Gateway)
	r.topics = make(map[string]TopicConfig)
	r.mu.Unlock()

	r.logger.Info("gateway registry cleared")
}

// Stats summarises the registry for monitoring.
type Stats struct {
	TotalGateways   int
	OnlineGateways  int
	OfflineGateways int
	TotalTopics     int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalGateways: len(r.gateways),
		TotalTopics:   len(r.allActiveTopicsLocked()),
	}
	for _, gw := range r.gateways {
		switch gw.Status {
		case StatusOnline:
			stats.OnlineGateways++
		case StatusOffline:
			stats.OfflineGateways++
		}
	}
	return stats
}

// conflictLocked reports the first topic of tc already owned by a
// gateway other than selfID. Caller must hold the write lock.
func (r *Registry) conflictLocked(selfID string, tc TopicConfig) (ownerID, topic string) {
	for _, t := range tc.Values() {
		for id, owned := range r.topics {
			if id != selfID && owned.Contains(t) {
				return id, t
			}
		}
	}
	return "", ""
}

// sortedIDsLocked returns gateway IDs in sorted order.
// Caller must hold at least a read lock.
func (r *Registry) sortedIDsLocked() []string {
	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// emit fans an event out to all listeners synchronously. The listener
// snapshot is taken under the lock but listeners run outside it, so a
// listener may safely call back into the registry.
func (r *Registry) emit(event Event) {
	r.mu.RLock()
	listeners := make([]EventListener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	logger := r.logger
	r.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("gateway event listener panic recovered",
						"event", string(event.Type),
						"gateway", event.Gateway.ID,
						"panic", rec,
					)
				}
			}()
			listener(event)
		}()
	}
}
