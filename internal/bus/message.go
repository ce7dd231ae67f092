package bus

import (
	"time"

	"github.com/carewatch/uwb-core/internal/gateway"
)

// Message is the envelope delivered to every route and topic listener.
//
// Payload holds the decoded JSON value when the raw bytes parse as JSON,
// otherwise the raw bytes as a string. RawPayload always holds the bytes
// exactly as received from the broker. Gateway is the registered gateway
// whose topic configuration matched the message topic, or nil when no
// gateway claims the topic.
type Message struct {
	Topic      string           `json:"topic"`
	Payload    any              `json:"payload"`
	RawPayload []byte           `json:"-"`
	Timestamp  time.Time        `json:"timestamp"`
	Gateway    *gateway.Gateway `json:"gateway,omitempty"`
}

// Object returns the payload as a JSON object, or nil when the payload
// is not an object.
func (m *Message) Object() map[string]any {
	obj, ok := m.Payload.(map[string]any)
	if !ok {
		return nil
	}
	return obj
}

// Content returns the payload's "content" field as a string.
// Device firmware uses this field to mark the record type, for example
// "300B" for vitals and "location" for position fixes. Returns "" when
// the payload is not an object or carries no content field.
func (m *Message) Content() string {
	obj := m.Object()
	if obj == nil {
		return ""
	}
	s, _ := obj["content"].(string)
	return s
}

// GatewayID returns the ID of the resolved gateway, or "" when the
// message topic did not match any registered gateway.
func (m *Message) GatewayID() string {
	if m.Gateway == nil {
		return ""
	}
	return m.Gateway.ID
}

// Handler processes a single message. Handlers run on the broker client's
// receive goroutine and must not block.
type Handler func(msg Message)

// Filter narrows the result of RecentMessages. Zero-valued fields match
// everything; set fields are combined with AND.
type Filter struct {
	// Topic matches messages on this exact topic.
	Topic string

	// GatewayID matches messages resolved to this gateway.
	GatewayID string

	// Content matches messages whose payload content field equals this
	// value.
	Content string

	// Since matches messages received at or after this instant.
	Since time.Time
}

// matches reports whether msg passes every set field of the filter.
func (f *Filter) matches(msg Message) bool {
	if f.Topic != "" && msg.Topic != f.Topic {
		return false
	}
	if f.GatewayID != "" && msg.GatewayID() != f.GatewayID {
		return false
	}
	if f.Content != "" && msg.Content() != f.Content {
		return false
	}
	if !f.Since.IsZero() && msg.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
