package store

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carewatch/uwb-core/internal/bus"
	"github.com/carewatch/uwb-core/internal/infrastructure/config"
)

// AckRecord is one normalized device acknowledgement.
type AckRecord struct {
	GatewayID     string         `json:"gateway_id,omitempty"`
	GatewayName   string         `json:"gateway_name,omitempty"`
	DeviceID      string         `json:"device_id,omitempty"`
	IDHex         string         `json:"id_hex,omitempty"`
	Node          string         `json:"node,omitempty"`
	Command       string         `json:"command,omitempty"`
	Status        string         `json:"status,omitempty"`
	Code          string         `json:"code,omitempty"`
	Message       string         `json:"message,omitempty"`
	Response      string         `json:"response,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Topic         string         `json:"topic"`
	Timestamp     time.Time      `json:"timestamp"`
	Raw           map[string]any `json:"-"`
}

// AckListener receives each accepted acknowledgement. Listeners run on
// the dispatch goroutine and must not block.
type AckListener func(ack AckRecord)

// AckStore keeps a bounded list of recent device acknowledgements and
// fans them out to listeners.
//
// Gateways frequently redeliver acks, so the store deduplicates on a
// content signature (topic, correlation or device id, and the
// status/message/code triple) within a sliding window.
//
// Safe for concurrent use.
type AckStore struct {
	mu     sync.RWMutex
	recent []AckRecord

	// dedupe maps content signature to last-seen time. Stale entries are
	// evicted on each insert.
	dedupe map[string]time.Time

	maxRecent    int
	dedupeWindow time.Duration
	listeners    map[string]AckListener
	logger       Logger
	unsubs       []func()
}

// NewAck creates an ack store. A nil logger disables logging.
func NewAck(cfg config.AckStoreConfig, logger Logger) *AckStore {
	if logger == nil {
		logger = noopLogger{}
	}
	maxRecent := cfg.MaxRecent
	if maxRecent <= 0 {
		maxRecent = config.DefaultAckMaxRecent
	}
	window := time.Duration(cfg.DedupeWindowMS) * time.Millisecond
	if window <= 0 {
		window = config.DefaultAckDedupeMS * time.Millisecond
	}
	return &AckStore{
		dedupe:       make(map[string]time.Time),
		maxRecent:    maxRecent,
		dedupeWindow: window,
		listeners:    make(map[string]AckListener),
		logger:       logger,
	}
}

// Start subscribes the store to both ack channel spellings.
func (s *AckStore) Start(t bus.Transport) {
	s.unsubs = []func(){
		t.SubscribePattern("ack-store", bus.PatternAck, 0, s.process),
		t.SubscribePattern("ack-store-legacy", bus.PatternAckLegacy, 0, s.process),
	}
	s.logger.Info("ack store wired")
}

// Stop removes the store's subscriptions.
func (s *AckStore) Stop() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}

// normalizeAck maps an ack payload's inconsistent field spellings into a
// flat record.
func normalizeAck(msg bus.Message) AckRecord {
	data := msg.Object()
	if data == nil {
		data = map[string]any{}
	}

	ack := AckRecord{
		DeviceID:      stringField(data, []string{"id"}),
		Node:          stringField(data, []string{"node"}),
		Status:        stringField(data, statusAliases),
		Code:          stringField(data, codeAliases),
		Message:       stringField(data, messageAliases),
		Response:      stringField(data, []string{"response"}),
		CorrelationID: stringField(data, serialNoAliases),
		Topic:         msg.Topic,
		Timestamp:     msg.Timestamp,
		Raw:           data,
	}
	if ack.DeviceID == "" {
		ack.DeviceID = stringField(data, macAliases)
	}
	if msg.Gateway != nil {
		ack.GatewayID = msg.Gateway.ID
		ack.GatewayName = msg.Gateway.Name
	}
	if ack.GatewayID == "" {
		ack.GatewayID = stringField(data, gatewayIDAliases)
	}
	if ack.Node == "" {
		ack.Node = "ANCHOR"
	}

	ack.Command = stringField(data, commandAliases)
	if ack.Command == "" {
		ack.Command = ack.Message
	}
	if ack.Command == "" {
		ack.Command = ack.Status
	}
	if ack.Command == "" {
		ack.Command = "ACK"
	}

	ack.IDHex = stringField(data, idHexAliases)
	if ack.IDHex == "" && ack.DeviceID != "" {
		if n, err := strconv.Atoi(ack.DeviceID); err == nil {
			ack.IDHex = fmt.Sprintf("0x%s", strings.ToUpper(strconv.FormatInt(int64(n), 16)))
		}
	}
	return ack
}

// signature builds the dedupe key: redeliveries share topic, identity
// and outcome even when timestamps differ.
func (a AckRecord) signature() string {
	id := a.CorrelationID
	if id == "" {
		id = a.DeviceID
	}
	return fmt.Sprintf("%s|%s|%s/%s/%s", a.Topic, id, a.Status, a.Message, a.Code)
}

// process consumes one ack-channel message.
func (s *AckStore) process(msg bus.Message) {
	ack := normalizeAck(msg)
	key := ack.signature()
	now := time.Now()

	s.mu.Lock()
	for k, t := range s.dedupe {
		if now.Sub(t) > s.dedupeWindow {
			delete(s.dedupe, k)
		}
	}
	if last, ok := s.dedupe[key]; ok && now.Sub(last) < s.dedupeWindow {
		s.mu.Unlock()
		s.logger.Debug("duplicate ack dropped", "topic", ack.Topic, "device", ack.DeviceID)
		return
	}
	s.dedupe[key] = now

	s.recent = append([]AckRecord{ack}, s.recent...)
	if len(s.recent) > s.maxRecent {
		s.recent = s.recent[:s.maxRecent]
	}
	listeners := make([]AckListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		s.notify(l, ack)
	}
}

func (s *AckStore) notify(l AckListener, ack AckRecord) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("ack listener panic", "topic", ack.Topic, "panic", fmt.Sprintf("%v", rec))
		}
	}()
	l(ack)
}

// Recent returns the most recent acks, newest first, capped at limit
// (0 means all retained).
func (s *AckStore) Recent(limit int) []AckRecord {
	s.mu.RLock()
	out := make([]AckRecord, len(s.recent))
	copy(out, s.recent)
	s.mu.RUnlock()

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// OnAck registers a listener for accepted acks. Returns an idempotent
// removal function.
func (s *AckStore) OnAck(listener AckListener) func() {
	s.mu.Lock()
	id := uuid.New().String()
	s.listeners[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Clear discards recent acks and the dedupe cache.
func (s *AckStore) Clear() {
	s.mu.Lock()
	s.recent = nil
	s.dedupe = make(map[string]time.Time)
	s.mu.Unlock()
	s.logger.Info("ack records cleared")
}
