package bus

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/carewatch/uwb-core/internal/buffer"
	"github.com/carewatch/uwb-core/internal/gateway"
	"github.com/carewatch/uwb-core/internal/infrastructure/config"
)

// brokerClient is the subset of the paho client the bus uses.
// pahomqtt.Client satisfies it; tests substitute a fake.
type brokerClient interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Unsubscribe(topics ...string) pahomqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	IsConnected() bool
}

// Bus connects the gateway fleet's MQTT traffic to in-process consumers.
//
// It owns the broker connection, mirrors the registry's active topics as
// broker subscriptions, and fans every inbound message out in a fixed
// order: the ring buffer first, then pattern routes, then exact-topic
// listeners. Consumers therefore always find a message in RecentMessages
// by the time their handler runs.
//
// Construct with New, wire with Start. There is no package-level
// instance; callers own the lifecycle.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Handlers run on the paho receive goroutine and must not block.
type Bus struct {
	cfg      config.MQTTConfig
	registry *gateway.Registry
	logger   Logger

	ring   *buffer.Ring[Message]
	router *Router

	// newClient builds the broker client from options. Swapped by tests.
	newClient func(*pahomqtt.ClientOptions) brokerClient

	mu           sync.RWMutex
	client       brokerClient
	status       Status
	activeTopics map[string]struct{}

	// topicListeners holds exact-topic handlers: topic -> listener ID -> handler.
	topicListeners  map[string]map[string]Handler
	statusListeners map[string]StatusListener

	totalMessages         uint64
	lastMessageTime       time.Time
	connectionAttempts    int
	successfulConnections int

	unsubRegistry func()
	started       bool
}

// New creates a bus bound to the given registry. The bus does not touch
// the network or the registry until Start is called. A nil logger
// disables logging.
func New(cfg config.MQTTConfig, registry *gateway.Registry, logger Logger) *Bus {
	if logger == nil {
		logger = noopLogger{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultMQTTBufferSize
	}
	return &Bus{
		cfg:             cfg,
		registry:        registry,
		logger:          logger,
		ring:            buffer.NewRing[Message](size),
		router:          NewRouter(logger),
		status:          StatusDisconnected,
		activeTopics:    make(map[string]struct{}),
		topicListeners:  make(map[string]map[string]Handler),
		statusListeners: make(map[string]StatusListener),
		newClient: func(opts *pahomqtt.ClientOptions) brokerClient {
			return pahomqtt.NewClient(opts)
		},
	}
}

// Start wires the bus to the registry and begins connecting.
//
// Registry events drive broker subscriptions from here on: added
// gateways get their topics subscribed, removed gateways get topics
// unsubscribed unless another gateway still claims them, and updates
// apply the topic diff. Start is idempotent.
func (b *Bus) Start() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.mu.Unlock()

	b.unsubRegistry = b.registry.On(b.handleGatewayEvent)
	return b.Connect()
}

// Stop detaches from the registry and disconnects from the broker.
func (b *Bus) Stop() {
	b.mu.Lock()
	unsub := b.unsubRegistry
	b.unsubRegistry = nil
	b.started = false
	b.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	b.Disconnect()
}

// ====== Connection lifecycle ======

// Connect starts a connection attempt. It returns immediately; progress
// is observed through OnStatus. Calling Connect while connected or
// already connecting is a no-op.
func (b *Bus) Connect() error {
	b.mu.Lock()
	if b.status == StatusConnected || b.status == StatusConnecting {
		b.mu.Unlock()
		return nil
	}
	b.connectionAttempts++
	b.mu.Unlock()

	b.setStatus(StatusConnecting)

	opts := buildClientOptions(b.cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		b.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		b.handleReconnecting()
	})

	client := b.newClient(opts)
	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	b.logger.Info("connecting to broker", "url", brokerURL(b.cfg))

	token := client.Connect()
	go func() {
		timeout := time.Duration(b.cfg.ConnectTimeoutMS) * time.Millisecond
		if !token.WaitTimeout(timeout) {
			b.logger.Error("connection attempt timed out", "timeout", timeout)
			b.setStatus(StatusError)
			return
		}
		if err := token.Error(); err != nil {
			b.logger.Error("connection attempt failed", "error", err)
			b.setStatus(StatusError)
		}
	}()
	return nil
}

// Disconnect closes the broker connection gracefully. Safe to call when
// already disconnected.
func (b *Bus) Disconnect() {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.activeTopics = make(map[string]struct{})
	b.mu.Unlock()

	if client != nil {
		client.Disconnect(defaultDisconnectQuiesce)
	}
	b.setStatus(StatusDisconnected)
}

// Status returns the current connection status.
func (b *Bus) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// IsConnected reports whether the bus has a live broker connection.
func (b *Bus) IsConnected() bool {
	return b.Status() == StatusConnected
}

// handleConnect runs on every successful (re)connection. The broker has
// no memory of a clean session's subscriptions, so all active registry
// topics are re-subscribed here.
func (b *Bus) handleConnect() {
	b.mu.Lock()
	b.successfulConnections++
	b.mu.Unlock()

	b.setStatus(StatusConnected)
	b.logger.Info("connected to broker", "url", brokerURL(b.cfg))

	for _, topic := range b.registry.AllActiveTopics() {
		b.subscribeTopic(topic)
	}
}

func (b *Bus) handleConnectionLost(err error) {
	b.mu.Lock()
	b.activeTopics = make(map[string]struct{})
	b.mu.Unlock()

	b.logger.Error("connection lost", "error", err)
	b.setStatus(StatusError)
}

func (b *Bus) handleReconnecting() {
	b.mu.Lock()
	b.connectionAttempts++
	b.mu.Unlock()

	b.logger.Warn("reconnecting to broker")
	b.setStatus(StatusReconnecting)
}

// setStatus records a status transition and notifies listeners.
// Listeners run outside the lock; a panicking listener is contained.
func (b *Bus) setStatus(status Status) {
	b.mu.Lock()
	if b.status == status {
		b.mu.Unlock()
		return
	}
	b.status = status
	listeners := make([]StatusListener, 0, len(b.statusListeners))
	for _, l := range b.statusListeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		b.notifyStatus(l, status)
	}
}

func (b *Bus) notifyStatus(l StatusListener, status Status) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("status listener panic", "panic", fmt.Sprintf("%v", rec))
		}
	}()
	l(status)
}

// OnStatus registers a status listener and immediately invokes it with
// the current status. Returns an idempotent removal function.
func (b *Bus) OnStatus(listener StatusListener) func() {
	b.mu.Lock()
	id := uuid.New().String()
	b.statusListeners[id] = listener
	current := b.status
	b.mu.Unlock()

	b.notifyStatus(listener, current)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.statusListeners, id)
	}
}

// ====== Registry-driven subscriptions ======

func (b *Bus) handleGatewayEvent(ev gateway.Event) {
	switch ev.Type {
	case gateway.EventAdded:
		for _, topic := range ev.Topics.Values() {
			b.subscribeTopic(topic)
		}
	case gateway.EventRemoved:
		for _, topic := range ev.Topics.Values() {
			b.unsubscribeTopic(topic)
		}
	case gateway.EventUpdated:
		added, removed := ev.OldTopics.Diff(ev.NewTopics)
		for _, topic := range removed {
			b.unsubscribeTopic(topic)
		}
		for _, topic := range added {
			b.subscribeTopic(topic)
		}
	}
}

// subscribeTopic subscribes on the broker and records the topic as
// active. Without a live connection this is a no-op; handleConnect
// catches the topic up once the connection arrives.
func (b *Bus) subscribeTopic(topic string) {
	b.mu.Lock()
	client := b.client
	if _, ok := b.activeTopics[topic]; ok || client == nil || !client.IsConnected() {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	token := client.Subscribe(topic, byte(b.cfg.QoS), b.onRawMessage)
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		b.logger.Error("subscribe timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Error("subscribe failed", "topic", topic, "error", err)
		return
	}

	b.mu.Lock()
	b.activeTopics[topic] = struct{}{}
	b.mu.Unlock()
	b.logger.Debug("subscribed", "topic", topic)
}

// unsubscribeTopic drops a broker subscription unless another registered
// gateway still claims the topic.
func (b *Bus) unsubscribeTopic(topic string) {
	for _, active := range b.registry.AllActiveTopics() {
		if active == topic {
			b.logger.Debug("topic still in use, keeping subscription", "topic", topic)
			return
		}
	}

	b.mu.Lock()
	client := b.client
	_, active := b.activeTopics[topic]
	delete(b.activeTopics, topic)
	b.mu.Unlock()

	if client == nil || !active {
		return
	}
	token := client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		b.logger.Warn("unsubscribe timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		return
	}
	b.logger.Debug("unsubscribed", "topic", topic)
}

// ActiveTopics returns the currently subscribed topics, sorted.
func (b *Bus) ActiveTopics() []string {
	b.mu.RLock()
	topics := make([]string, 0, len(b.activeTopics))
	for t := range b.activeTopics {
		topics = append(topics, t)
	}
	b.mu.RUnlock()
	sort.Strings(topics)
	return topics
}

// ====== Message pipeline ======

func (b *Bus) onRawMessage(_ pahomqtt.Client, m pahomqtt.Message) {
	b.handleMessage(m.Topic(), m.Payload())
}

// Inject feeds a message through the full dispatch pipeline as if it had
// arrived from the broker. Alternate message sources (a WebSocket relay,
// a replay tool) use this to share the ring buffer, routes, and
// listeners with live traffic.
func (b *Bus) Inject(topic string, raw []byte) {
	b.handleMessage(topic, raw)
}

// handleMessage decodes an inbound message, resolves its gateway, and
// fans it out. Ring buffer first, pattern routes second, exact-topic
// listeners last.
func (b *Bus) handleMessage(topic string, raw []byte) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Non-JSON payloads pass through as strings.
		payload = string(raw)
	}

	msg := Message{
		Topic:      topic,
		Payload:    payload,
		RawPayload: raw,
		Timestamp:  time.Now(),
		Gateway:    b.registry.FindByTopic(topic),
	}

	b.mu.Lock()
	b.totalMessages++
	b.lastMessageTime = msg.Timestamp
	listeners := b.snapshotTopicListenersLocked(topic)
	b.mu.Unlock()

	b.ring.Push(msg)
	b.router.Route(msg)

	for _, handler := range listeners {
		b.invoke(handler, msg)
	}
}

func (b *Bus) snapshotTopicListenersLocked(topic string) []Handler {
	byID, ok := b.topicListeners[topic]
	if !ok {
		return nil
	}
	handlers := make([]Handler, 0, len(byID))
	for _, h := range byID {
		handlers = append(handlers, h)
	}
	return handlers
}

func (b *Bus) invoke(handler Handler, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("topic listener panic", "topic", msg.Topic, "panic", fmt.Sprintf("%v", rec))
		}
	}()
	handler(msg)
}

// ====== Consumer API ======

// Subscribe registers a handler for one exact topic. It does not create
// a broker subscription; the registry governs which topics flow. Returns
// an idempotent removal function.
func (b *Bus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	if b.topicListeners[topic] == nil {
		b.topicListeners[topic] = make(map[string]Handler)
	}
	b.topicListeners[topic][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if byID, ok := b.topicListeners[topic]; ok {
			delete(byID, id)
			if len(byID) == 0 {
				delete(b.topicListeners, topic)
			}
		}
	}
}

// SubscribePattern registers a pattern route. Higher priority routes run
// first. Returns an idempotent removal function.
func (b *Bus) SubscribePattern(name string, pattern *regexp.Regexp, priority int, handler Handler) func() {
	return b.router.Add(name, pattern, priority, handler)
}

// Router exposes the pattern router for inspection and direct route
// management.
func (b *Bus) Router() *Router {
	return b.router
}

// Publish sends a message to the broker.
//
// Payload handling by type:
//   - []byte: sent as-is
//   - string: sent as UTF-8 bytes
//   - anything else: JSON-encoded
//
// Returns ErrNotConnected without a live connection; queueing while
// offline is deliberately not offered, callers decide their own retry
// policy.
func (b *Bus) Publish(topic string, payload any, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	if len(raw) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(raw), maxPayloadSize)
	}

	b.mu.RLock()
	client := b.client
	connected := b.status == StatusConnected
	b.mu.RUnlock()

	if client == nil || !connected {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, retained, raw)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(p)
	}
}

// RecentMessages returns buffered messages newest first, narrowed by the
// optional filter and capped at limit (0 means no cap).
func (b *Bus) RecentMessages(filter *Filter, limit int) []Message {
	all := b.ring.All()
	if filter != nil {
		kept := all[:0:0]
		for _, msg := range all {
			if filter.matches(msg) {
				kept = append(kept, msg)
			}
		}
		all = kept
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// LatestMessage returns the most recent buffered message.
func (b *Bus) LatestMessage() (Message, bool) {
	return b.ring.Latest()
}

// GetStats returns a snapshot of bus activity.
func (b *Bus) GetStats() Stats {
	b.mu.RLock()
	stats := Stats{
		Status:                b.status,
		TotalMessages:         b.totalMessages,
		ConnectionAttempts:    b.connectionAttempts,
		SuccessfulConnections: b.successfulConnections,
	}
	if !b.lastMessageTime.IsZero() {
		stats.LastMessageTime = b.lastMessageTime.UTC().Format(time.RFC3339Nano)
	}
	b.mu.RUnlock()

	stats.ActiveTopics = b.ActiveTopics()
	stats.BufferedMessages = b.ring.Len()
	stats.Routes = b.router.Len()
	return stats
}
