package store

import (
	"sync"
	"time"

	"github.com/carewatch/uwb-core/internal/bus"
	"github.com/carewatch/uwb-core/internal/infrastructure/config"
)

// AnchorConfigRecord is one anchor configuration broadcast. Anchors are
// fixed reference points, so position here is their surveyed mounting
// coordinate, not a measurement.
type AnchorConfigRecord struct {
	Topic       string         `json:"topic"`
	GatewayID   string         `json:"gateway_id,omitempty"`
	GatewayName string         `json:"gateway_name,omitempty"`
	Node        string         `json:"node,omitempty"`
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name,omitempty"`
	Position    *Position      `json:"position,omitempty"`
	Raw         map[string]any `json:"-"`
	ReceivedAt  time.Time      `json:"received_at"`
}

// AnchorStore keeps a bounded list of anchor configuration broadcasts.
//
// Safe for concurrent use.
type AnchorStore struct {
	mu      sync.RWMutex
	configs []AnchorConfigRecord

	maxRecent int
	logger    Logger
	unsubs    []func()
}

// NewAnchor creates an anchor store. A nil logger disables logging.
func NewAnchor(cfg config.AnchorStoreConfig, logger Logger) *AnchorStore {
	if logger == nil {
		logger = noopLogger{}
	}
	maxRecent := cfg.MaxRecent
	if maxRecent <= 0 {
		maxRecent = config.DefaultAnchorMaxRecent
	}
	return &AnchorStore{
		maxRecent: maxRecent,
		logger:    logger,
	}
}

// Start subscribes the store to both anchor-config channel spellings.
func (s *AnchorStore) Start(t bus.Transport) {
	s.unsubs = []func(){
		t.SubscribePattern("anchor-store", bus.PatternAnchorConf, 0, s.process),
		t.SubscribePattern("anchor-store-legacy", bus.PatternAnchorLegacy, 0, s.process),
	}
	s.logger.Info("anchor store wired")
}

// Stop removes the store's subscriptions.
func (s *AnchorStore) Stop() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}

func (s *AnchorStore) process(msg bus.Message) {
	data := msg.Object()
	if data == nil {
		return
	}

	rec := AnchorConfigRecord{
		Topic:      msg.Topic,
		Node:       stringField(data, []string{"node"}),
		ID:         stringField(data, []string{"id"}),
		Name:       stringField(data, []string{"name"}),
		Raw:        data,
		ReceivedAt: msg.Timestamp,
	}
	if pos, ok := parsePosition(data); ok {
		rec.Position = &pos
	}
	if msg.Gateway != nil {
		rec.GatewayID = msg.Gateway.ID
		rec.GatewayName = msg.Gateway.Name
	}

	s.mu.Lock()
	s.configs = append([]AnchorConfigRecord{rec}, s.configs...)
	if len(s.configs) > s.maxRecent {
		s.configs = s.configs[:s.maxRecent]
	}
	s.mu.Unlock()
}

// ConfigsByTopic returns config broadcasts for one topic within the
// lookback window (0 means all retained), newest first.
func (s *AnchorStore) ConfigsByTopic(topic string, window time.Duration) []AnchorConfigRecord {
	cutoff := sinceCutoff(window)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AnchorConfigRecord
	for _, rec := range s.configs {
		if rec.Topic == topic && !rec.ReceivedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// Recent returns the most recent config broadcasts across all topics,
// newest first, capped at limit (0 means all retained).
func (s *AnchorStore) Recent(limit int) []AnchorConfigRecord {
	s.mu.RLock()
	out := make([]AnchorConfigRecord, len(s.configs))
	copy(out, s.configs)
	s.mu.RUnlock()

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
