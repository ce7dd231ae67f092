package store

import (
	"sync"
	"time"

	"github.com/carewatch/uwb-core/internal/bus"
	"github.com/carewatch/uwb-core/internal/infrastructure/config"
)

// tagNodeMarker identifies payloads originating from tag hardware.
// Anchors and gateways stamp their own node types on the same channels.
const tagNodeMarker = "TAG"

// TagInfoRecord is a tag's periodic self-report (content "info").
type TagInfoRecord struct {
	Topic             string         `json:"topic"`
	GatewayID         string         `json:"gateway_id,omitempty"`
	GatewayName       string         `json:"gateway_name,omitempty"`
	ID                int            `json:"id"`
	IDHex             string         `json:"id_hex,omitempty"`
	GatewayNodeID     int            `json:"gateway_node_id,omitempty"`
	FirmwareVersion   int            `json:"firmware_version,omitempty"`
	BatteryLevel      int            `json:"battery_level,omitempty"`
	BatteryVoltage    float64        `json:"battery_voltage,omitempty"`
	LEDOnTimeMS       int            `json:"led_on_time_ms,omitempty"`
	LEDOffTimeMS      int            `json:"led_off_time_ms,omitempty"`
	BatDetectTimeS    int            `json:"bat_detect_time_s,omitempty"`
	FiveVPlugged      string         `json:"five_v_plugged,omitempty"`
	UWBTxPowerChanged string         `json:"uwb_tx_power_changed,omitempty"`
	UWBTxPower        any            `json:"uwb_tx_power,omitempty"`
	SerialNo          int            `json:"serial_no,omitempty"`
	Raw               map[string]any `json:"-"`
	ReceivedAt        time.Time      `json:"received_at"`
}

// TagLocationRecord is a tag-originated position fix (content
// "location"). These overlap with LocationStore's records but keep the
// tag's own framing, including its gateway node id and serial number.
type TagLocationRecord struct {
	Topic         string         `json:"topic"`
	GatewayID     string         `json:"gateway_id,omitempty"`
	GatewayName   string         `json:"gateway_name,omitempty"`
	ID            int            `json:"id"`
	GatewayNodeID int            `json:"gateway_node_id,omitempty"`
	Position      Position       `json:"position"`
	Time          string         `json:"time,omitempty"`
	SerialNo      int            `json:"serial_no,omitempty"`
	Raw           map[string]any `json:"-"`
	ReceivedAt    time.Time      `json:"received_at"`
}

// TagConfigRecord is a tag's configuration broadcast (content "config").
type TagConfigRecord struct {
	Topic            string         `json:"topic"`
	GatewayID        string         `json:"gateway_id,omitempty"`
	GatewayName      string         `json:"gateway_name,omitempty"`
	ID               int            `json:"id"`
	Name             string         `json:"name,omitempty"`
	GatewayNodeID    int            `json:"gateway_node_id,omitempty"`
	FirmwareUpdate   int            `json:"firmware_update,omitempty"`
	LED              int            `json:"led,omitempty"`
	BLE              int            `json:"ble,omitempty"`
	LocationEngine   int            `json:"location_engine,omitempty"`
	ResponsiveMode   int            `json:"responsive_mode,omitempty"`
	StationaryDetect int            `json:"stationary_detect,omitempty"`
	NominalUDRHz     int            `json:"nominal_udr_hz,omitempty"`
	StationaryUDRHz  int            `json:"stationary_udr_hz,omitempty"`
	Raw              map[string]any `json:"-"`
	ReceivedAt       time.Time      `json:"received_at"`
}

// TagStore demultiplexes tag traffic into three bounded lists.
//
// A single physical topic legitimately carries different message
// subtypes, so the store filters on the payload's node marker and
// content field rather than on topic alone.
//
// Safe for concurrent use.
type TagStore struct {
	mu        sync.RWMutex
	infos     []TagInfoRecord
	locations []TagLocationRecord
	configs   []TagConfigRecord

	maxRecent int
	logger    Logger
	unsubs    []func()
}

// NewTag creates a tag store. A nil logger disables logging.
func NewTag(cfg config.TagStoreConfig, logger Logger) *TagStore {
	if logger == nil {
		logger = noopLogger{}
	}
	maxRecent := cfg.MaxRecent
	if maxRecent <= 0 {
		maxRecent = config.DefaultTagMaxRecent
	}
	return &TagStore{
		maxRecent: maxRecent,
		logger:    logger,
	}
}

// Start subscribes the store to the message, location, and both
// tag-config channel spellings.
func (s *TagStore) Start(t bus.Transport) {
	s.unsubs = []func(){
		t.SubscribePattern("tag-store-info", bus.PatternMessage, 0, s.processInfo),
		t.SubscribePattern("tag-store-location", bus.PatternLocation, 0, s.processLocation),
		t.SubscribePattern("tag-store-config", bus.PatternTagConf, 0, s.processConfig),
		t.SubscribePattern("tag-store-config-legacy", bus.PatternTagLegacy, 0, s.processConfig),
	}
	s.logger.Info("tag store wired")
}

// Stop removes the store's subscriptions.
func (s *TagStore) Stop() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}

// fromTag reports whether the payload is a tag message with the wanted
// content type.
func fromTag(data map[string]any, content string) bool {
	node, _ := data["node"].(string)
	c, _ := data["content"].(string)
	return node == tagNodeMarker && c == content
}

func (s *TagStore) processInfo(msg bus.Message) {
	data := msg.Object()
	if data == nil || !fromTag(data, "info") {
		return
	}

	rec := TagInfoRecord{
		Topic:             msg.Topic,
		ID:                intField(data, []string{"id"}),
		IDHex:             stringField(data, idHexAliases),
		GatewayNodeID:     intField(data, gatewayIDAliases),
		FirmwareVersion:   intField(data, fwVerAliases),
		BatteryLevel:      intField(data, batteryAliases),
		BatteryVoltage:    floatField(data, batteryVoltAliases),
		LEDOnTimeMS:       intField(data, ledOnAliases),
		LEDOffTimeMS:      intField(data, ledOffAliases),
		BatDetectTimeS:    intField(data, batDetectAliases),
		FiveVPlugged:      stringField(data, fiveVAliases),
		UWBTxPowerChanged: stringField(data, txPowerChgAliases),
		SerialNo:          intField(data, serialNoAliases),
		Raw:               data,
		ReceivedAt:        msg.Timestamp,
	}
	if v, ok := lookupField(data, txPowerAliases); ok {
		rec.UWBTxPower = v
	}
	if msg.Gateway != nil {
		rec.GatewayID = msg.Gateway.ID
		rec.GatewayName = msg.Gateway.Name
	}

	s.mu.Lock()
	s.infos = append([]TagInfoRecord{rec}, s.infos...)
	if len(s.infos) > s.maxRecent {
		s.infos = s.infos[:s.maxRecent]
	}
	s.mu.Unlock()
}

func (s *TagStore) processLocation(msg bus.Message) {
	data := msg.Object()
	if data == nil || !fromTag(data, "location") {
		return
	}

	pos, _ := parsePosition(data)
	rec := TagLocationRecord{
		Topic:         msg.Topic,
		ID:            intField(data, []string{"id"}),
		GatewayNodeID: intField(data, gatewayIDAliases),
		Position:      pos,
		Time:          stringField(data, []string{"time"}),
		SerialNo:      intField(data, serialNoAliases),
		Raw:           data,
		ReceivedAt:    msg.Timestamp,
	}
	if msg.Gateway != nil {
		rec.GatewayID = msg.Gateway.ID
		rec.GatewayName = msg.Gateway.Name
	}

	s.mu.Lock()
	s.locations = append([]TagLocationRecord{rec}, s.locations...)
	if len(s.locations) > s.maxRecent {
		s.locations = s.locations[:s.maxRecent]
	}
	s.mu.Unlock()
}

func (s *TagStore) processConfig(msg bus.Message) {
	data := msg.Object()
	if data == nil || !fromTag(data, "config") {
		return
	}

	rec := TagConfigRecord{
		Topic:            msg.Topic,
		ID:               intField(data, []string{"id"}),
		Name:             stringField(data, []string{"name"}),
		GatewayNodeID:    intField(data, gatewayIDAliases),
		FirmwareUpdate:   intField(data, fwUpdateAliases),
		LED:              intField(data, []string{"led"}),
		BLE:              intField(data, []string{"ble"}),
		LocationEngine:   intField(data, locEngineAliases),
		ResponsiveMode:   intField(data, respModeAliases),
		StationaryDetect: intField(data, statDetectAliases),
		NominalUDRHz:     intField(data, nominalUDRAliases),
		StationaryUDRHz:  intField(data, statUDRAliases),
		Raw:              data,
		ReceivedAt:       msg.Timestamp,
	}
	if msg.Gateway != nil {
		rec.GatewayID = msg.Gateway.ID
		rec.GatewayName = msg.Gateway.Name
	}

	s.mu.Lock()
	s.configs = append([]TagConfigRecord{rec}, s.configs...)
	if len(s.configs) > s.maxRecent {
		s.configs = s.configs[:s.maxRecent]
	}
	s.mu.Unlock()
}

// sinceCutoff converts a lookback window into an earliest-allowed time.
// A zero window admits everything.
func sinceCutoff(window time.Duration) time.Time {
	if window <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-window)
}

// InfosByTopic returns info records for one topic within the lookback
// window (0 means all retained), newest first.
func (s *TagStore) InfosByTopic(topic string, window time.Duration) []TagInfoRecord {
	cutoff := sinceCutoff(window)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TagInfoRecord
	for _, rec := range s.infos {
		if rec.Topic == topic && !rec.ReceivedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// LocationsByTopic returns tag location records for one topic within the
// lookback window (0 means all retained), newest first.
func (s *TagStore) LocationsByTopic(topic string, window time.Duration) []TagLocationRecord {
	cutoff := sinceCutoff(window)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TagLocationRecord
	for _, rec := range s.locations {
		if rec.Topic == topic && !rec.ReceivedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// ConfigsByTopic returns config records for one topic within the
// lookback window (0 means all retained), newest first.
func (s *TagStore) ConfigsByTopic(topic string, window time.Duration) []TagConfigRecord {
	cutoff := sinceCutoff(window)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TagConfigRecord
	for _, rec := range s.configs {
		if rec.Topic == topic && !rec.ReceivedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}
