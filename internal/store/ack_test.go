package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/carewatch/uwb-core/internal/infrastructure/config"
)

func newAckStore(t *testing.T, maxRecent, dedupeMS int) (*AckStore, *fakeTransport) {
	t.Helper()
	s := NewAck(config.AckStoreConfig{
		MaxRecent:      maxRecent,
		DedupeWindowMS: dedupeMS,
	}, nil)
	ft := &fakeTransport{}
	s.Start(ft)
	t.Cleanup(s.Stop)
	return s, ft
}

// ====== Normalization ======

func TestAckStoreNormalization(t *testing.T) {
	s, ft := newAckStore(t, 10, 4000)

	payload := `{"id":"31","node":"TAG","command":"reboot","status":"OK","code":"0","serial no":"abc-123"}`
	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", payload, testGateway("gw1")))

	recent := s.Recent(0)
	if len(recent) != 1 {
		t.Fatalf("Recent() = %d records, want 1", len(recent))
	}
	ack := recent[0]
	if ack.DeviceID != "31" || ack.Node != "TAG" {
		t.Errorf("DeviceID/Node = %q/%q", ack.DeviceID, ack.Node)
	}
	if ack.Command != "reboot" || ack.Status != "OK" || ack.Code != "0" {
		t.Errorf("Command/Status/Code = %q/%q/%q", ack.Command, ack.Status, ack.Code)
	}
	if ack.CorrelationID != "abc-123" {
		t.Errorf("CorrelationID = %q", ack.CorrelationID)
	}
	if ack.GatewayID != "gw1" {
		t.Errorf("GatewayID = %q, want resolved gw1", ack.GatewayID)
	}
	// 31 decimal is 0x1F.
	if ack.IDHex != "0x1F" {
		t.Errorf("IDHex = %q, want derived 0x1F", ack.IDHex)
	}
}

func TestAckStoreNormalizationFallbacks(t *testing.T) {
	s, ft := newAckStore(t, 10, 4000)

	// No id, node, command or gateway context: device falls back to MAC
	// aliases, node to ANCHOR, command through message then status.
	payload := `{"mac":"AA:BB","info":"config applied","gateway_id":"gw9"}`
	ft.deliver(jsonMessage(t, "UWB/ack_from_node", payload, nil))

	ack := s.Recent(1)[0]
	if ack.DeviceID != "AA:BB" {
		t.Errorf("DeviceID = %q, want MAC fallback", ack.DeviceID)
	}
	if ack.Node != "ANCHOR" {
		t.Errorf("Node = %q, want default ANCHOR", ack.Node)
	}
	if ack.Command != "config applied" {
		t.Errorf("Command = %q, want message fallback", ack.Command)
	}
	if ack.GatewayID != "gw9" {
		t.Errorf("GatewayID = %q, want payload fallback", ack.GatewayID)
	}
	if ack.IDHex != "" {
		t.Errorf("IDHex = %q, non-numeric id should not derive hex", ack.IDHex)
	}

	// Nothing at all still yields a record with the ACK command default.
	ft.deliver(jsonMessage(t, "UWB/ack_from_node", `{}`, nil))
	if ack := s.Recent(1)[0]; ack.Command != "ACK" {
		t.Errorf("Command = %q, want default ACK", ack.Command)
	}
}

// ====== Dedupe ======

func TestAckStoreDedupeWindow(t *testing.T) {
	s, ft := newAckStore(t, 10, 4000)

	payload := `{"id":"31","status":"OK"}`
	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", payload, testGateway("gw1")))
	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", payload, testGateway("gw1")))

	if got := len(s.Recent(0)); got != 1 {
		t.Errorf("redelivery within window kept: %d records", got)
	}

	// Different outcome is a different signature.
	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", `{"id":"31","status":"FAIL"}`, testGateway("gw1")))
	if got := len(s.Recent(0)); got != 2 {
		t.Errorf("distinct status deduped: %d records", got)
	}

	// Same outcome on another topic is distinct too.
	ft.deliver(jsonMessage(t, "UWB/GWCCDD_Ack", payload, testGateway("gw2")))
	if got := len(s.Recent(0)); got != 3 {
		t.Errorf("distinct topic deduped: %d records", got)
	}
}

func TestAckStoreDedupeExpiry(t *testing.T) {
	s, ft := newAckStore(t, 10, 1) // 1ms window

	payload := `{"id":"31","status":"OK"}`
	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", payload, testGateway("gw1")))
	time.Sleep(5 * time.Millisecond)
	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", payload, testGateway("gw1")))

	if got := len(s.Recent(0)); got != 2 {
		t.Errorf("redelivery after window dropped: %d records", got)
	}
}

// ====== Retention and listeners ======

func TestAckStoreBoundedRecent(t *testing.T) {
	s, ft := newAckStore(t, 3, 4000)

	for i := 0; i < 5; i++ {
		payload := fmt.Sprintf(`{"id":"%d","status":"OK"}`, i)
		ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", payload, testGateway("gw1")))
	}

	recent := s.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("Recent() = %d records, want cap 3", len(recent))
	}
	if recent[0].DeviceID != "4" || recent[2].DeviceID != "2" {
		t.Errorf("retention order wrong: %q .. %q", recent[0].DeviceID, recent[2].DeviceID)
	}
	if limited := s.Recent(2); len(limited) != 2 {
		t.Errorf("Recent(2) = %d records", len(limited))
	}
}

func TestAckStoreListeners(t *testing.T) {
	s, ft := newAckStore(t, 10, 4000)

	var got []AckRecord
	unsub := s.OnAck(func(ack AckRecord) { got = append(got, ack) })
	panicking := s.OnAck(func(AckRecord) { panic("listener boom") })
	defer panicking()

	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", `{"id":"1","status":"OK"}`, testGateway("gw1")))
	if len(got) != 1 || got[0].DeviceID != "1" {
		t.Fatalf("listener saw %v", got)
	}

	unsub()
	unsub() // idempotent
	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", `{"id":"2","status":"OK"}`, testGateway("gw1")))
	if len(got) != 1 {
		t.Errorf("removed listener still invoked: %d calls", len(got))
	}

	// A duplicate never reaches listeners.
	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", `{"id":"2","status":"OK"}`, testGateway("gw1")))
	if len(s.Recent(0)) != 2 {
		t.Errorf("Recent() = %d, want 2", len(s.Recent(0)))
	}
}

func TestAckStoreClear(t *testing.T) {
	s, ft := newAckStore(t, 10, 4000)

	payload := `{"id":"1","status":"OK"}`
	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", payload, testGateway("gw1")))
	s.Clear()

	if len(s.Recent(0)) != 0 {
		t.Error("Clear() left records")
	}
	// Clear drops the dedupe cache too, so the same ack is accepted again.
	ft.deliver(jsonMessage(t, "UWB/GW16B8_Ack", payload, testGateway("gw1")))
	if len(s.Recent(0)) != 1 {
		t.Error("dedupe cache survived Clear()")
	}
}
