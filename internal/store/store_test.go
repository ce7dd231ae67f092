package store

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/carewatch/uwb-core/internal/bus"
	"github.com/carewatch/uwb-core/internal/gateway"
)

// ====== Test transport ======

type fakeRoute struct {
	name    string
	pattern *regexp.Regexp
	handler bus.Handler
}

// fakeTransport records subscriptions and lets tests push messages into
// them without a broker.
type fakeTransport struct {
	routes []fakeRoute
}

func (f *fakeTransport) Start() error { return nil }
func (f *fakeTransport) Stop()        {}

func (f *fakeTransport) Status() bus.Status { return bus.StatusConnected }

func (f *fakeTransport) OnStatus(l bus.StatusListener) func() {
	l(bus.StatusConnected)
	return func() {}
}

func (f *fakeTransport) Subscribe(topic string, handler bus.Handler) func() {
	return func() {}
}

func (f *fakeTransport) SubscribePattern(name string, pattern *regexp.Regexp, priority int, handler bus.Handler) func() {
	f.routes = append(f.routes, fakeRoute{name: name, pattern: pattern, handler: handler})
	idx := len(f.routes) - 1
	return func() { f.routes[idx].handler = nil }
}

func (f *fakeTransport) Publish(topic string, payload any, qos byte, retained bool) error {
	return nil
}

func (f *fakeTransport) RecentMessages(filter *bus.Filter, limit int) []bus.Message { return nil }
func (f *fakeTransport) LatestMessage() (bus.Message, bool)                         { return bus.Message{}, false }
func (f *fakeTransport) GetStats() bus.Stats                                        { return bus.Stats{} }

// deliver routes a message to every matching recorded subscription.
func (f *fakeTransport) deliver(msg bus.Message) {
	for _, r := range f.routes {
		if r.handler != nil && r.pattern.MatchString(msg.Topic) {
			r.handler(msg)
		}
	}
}

// ====== Message fixtures ======

func jsonMessage(t *testing.T, topic, payload string, gw *gateway.Gateway) bus.Message {
	t.Helper()
	return jsonMessageAt(t, topic, payload, gw, time.Now())
}

func jsonMessageAt(t *testing.T, topic, payload string, gw *gateway.Gateway, ts time.Time) bus.Message {
	t.Helper()
	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return bus.Message{
		Topic:      topic,
		Payload:    decoded,
		RawPayload: []byte(payload),
		Timestamp:  ts,
		Gateway:    gw,
	}
}

func testGateway(id string) *gateway.Gateway {
	return &gateway.Gateway{
		ID:         id,
		Name:       "Gateway " + id,
		MACAddress: "GW:F9E516B8",
		Status:     gateway.StatusOnline,
	}
}
