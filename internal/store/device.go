package store

import (
	"sort"
	"sync"
	"time"

	"github.com/carewatch/uwb-core/internal/bus"
	"github.com/carewatch/uwb-core/internal/infrastructure/config"
)

// DeviceStatus classifies a device's operational state.
type DeviceStatus string

const (
	DeviceActive   DeviceStatus = "active"
	DeviceInactive DeviceStatus = "inactive"
	DeviceOffline  DeviceStatus = "offline"
)

// DeviceType distinguishes positioning hardware classes.
type DeviceType string

const (
	DeviceTag    DeviceType = "tag"
	DeviceAnchor DeviceType = "anchor"
)

// DeviceRecord is the presence view of one device, derived from its
// health and location traffic rather than any explicit registration.
type DeviceRecord struct {
	DeviceID       string       `json:"device_id"`
	DeviceUID      string       `json:"device_uid"`
	DeviceType     DeviceType   `json:"device_type"`
	GatewayID      string       `json:"gateway_id"`
	Status         DeviceStatus `json:"status"`
	BatteryLevel   int          `json:"battery_level,omitempty"`
	SignalStrength int          `json:"signal_strength,omitempty"`
	Position       *Position    `json:"position,omitempty"`
	LastSeen       time.Time    `json:"last_seen"`
}

// DeviceStats summarises the device fleet.
type DeviceStats struct {
	Total           int            `json:"total"`
	Online          int            `json:"online"`
	Offline         int            `json:"offline"`
	ByType          map[string]int `json:"by_type"`
	AvgBattery      int            `json:"avg_battery"`
	LowBatteryCount int            `json:"low_battery_count"`
}

// DeviceStore derives device presence from health and location traffic.
//
// Updates merge: a vitals message carries battery but no position, a
// location message the reverse, and neither may wipe the other's last
// known value. Liveness is computed at query time against the offline
// threshold, the same scheme LocationStore uses for expiry.
//
// Safe for concurrent use.
type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]DeviceRecord

	offlineThreshold time.Duration
	lowBatteryPct    int
	logger           Logger
	unsubs           []func()
}

// NewDevice creates a device store. A nil logger disables logging.
func NewDevice(cfg config.DeviceStoreConfig, logger Logger) *DeviceStore {
	if logger == nil {
		logger = noopLogger{}
	}
	threshold := time.Duration(cfg.OfflineThresholdMS) * time.Millisecond
	if threshold <= 0 {
		threshold = config.DefaultDeviceOfflineMS * time.Millisecond
	}
	lowBattery := cfg.LowBatteryPercent
	if lowBattery <= 0 {
		lowBattery = config.DefaultLowBatteryPercent
	}
	return &DeviceStore{
		devices:          make(map[string]DeviceRecord),
		offlineThreshold: threshold,
		lowBatteryPct:    lowBattery,
		logger:           logger,
	}
}

// Start subscribes the store to health and location traffic, the two
// channels that imply device presence.
func (s *DeviceStore) Start(t bus.Transport) {
	s.unsubs = []func(){
		t.SubscribePattern("device-store-health", bus.PatternHealth, 0, s.process),
		t.SubscribePattern("device-store-location", bus.PatternLocation, 0, s.process),
	}
	s.logger.Info("device store wired")
}

// Stop removes the store's subscriptions.
func (s *DeviceStore) Stop() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}

// process extracts a presence update from a health or location payload.
func (s *DeviceStore) process(msg bus.Message) {
	data := msg.Object()
	if data == nil {
		return
	}

	var rec DeviceRecord
	switch msg.Content() {
	case healthContentMarker:
		mac := stringField(data, macAliases)
		if mac == "" {
			return
		}
		rec = DeviceRecord{
			DeviceID:       mac,
			DeviceUID:      "TAG:" + mac,
			DeviceType:     DeviceTag,
			BatteryLevel:   intField(data, batteryAliases),
			SignalStrength: intField(data, signalAliases),
		}
	case locationContentMarker:
		id := stringField(data, []string{"id"})
		if id == "" {
			return
		}
		rec = DeviceRecord{
			DeviceID:   id,
			DeviceUID:  id,
			DeviceType: DeviceTag,
		}
		if pos, ok := parsePosition(data); ok {
			rec.Position = &pos
		}
	default:
		return
	}

	rec.GatewayID = msg.GatewayID()
	rec.LastSeen = msg.Timestamp
	rec.Status = DeviceActive
	if rec.BatteryLevel != 0 && rec.BatteryLevel < s.lowBatteryPct {
		rec.Status = DeviceInactive
	}

	s.mu.Lock()
	if existing, ok := s.devices[rec.DeviceID]; ok {
		// Merge: keep last known values the new message lacks.
		if rec.BatteryLevel == 0 {
			rec.BatteryLevel = existing.BatteryLevel
		}
		if rec.SignalStrength == 0 {
			rec.SignalStrength = existing.SignalStrength
		}
		if rec.Position == nil {
			rec.Position = existing.Position
		}
	}
	s.devices[rec.DeviceID] = rec
	s.mu.Unlock()
}

// Device returns the presence record for one device.
func (s *DeviceStore) Device(deviceID string) (DeviceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.devices[deviceID]
	return rec, ok
}

// DevicesByGateway returns devices last seen through the given gateway,
// most recent first.
func (s *DeviceStore) DevicesByGateway(gatewayID string) []DeviceRecord {
	return s.filter(func(rec DeviceRecord) bool {
		return rec.GatewayID == gatewayID
	})
}

// DevicesByType returns devices of the given type, most recent first.
func (s *DeviceStore) DevicesByType(deviceType DeviceType) []DeviceRecord {
	return s.filter(func(rec DeviceRecord) bool {
		return rec.DeviceType == deviceType
	})
}

// OnlineDevices returns active devices seen within the offline
// threshold.
func (s *DeviceStore) OnlineDevices() []DeviceRecord {
	now := time.Now()
	return s.filter(func(rec DeviceRecord) bool {
		return s.online(rec, now)
	})
}

// OfflineDevices returns devices not seen within the offline threshold,
// plus any explicitly marked offline.
func (s *DeviceStore) OfflineDevices() []DeviceRecord {
	now := time.Now()
	return s.filter(func(rec DeviceRecord) bool {
		return now.Sub(rec.LastSeen) >= s.offlineThreshold || rec.Status == DeviceOffline
	})
}

func (s *DeviceStore) online(rec DeviceRecord, now time.Time) bool {
	return now.Sub(rec.LastSeen) < s.offlineThreshold && rec.Status == DeviceActive
}

func (s *DeviceStore) filter(keep func(DeviceRecord) bool) []DeviceRecord {
	s.mu.RLock()
	var out []DeviceRecord
	for _, rec := range s.devices {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// UpdateStatus overrides a device's status, e.g. marking it offline
// after a maintenance action. Unknown ids are a no-op.
func (s *DeviceStore) UpdateStatus(deviceID string, status DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.devices[deviceID]; ok {
		rec.Status = status
		s.devices[deviceID] = rec
	}
}

// Remove deletes a device record. Unknown ids are a no-op.
func (s *DeviceStore) Remove(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, deviceID)
}

// Clear discards all device records.
func (s *DeviceStore) Clear() {
	s.mu.Lock()
	s.devices = make(map[string]DeviceRecord)
	s.mu.Unlock()
	s.logger.Info("device records cleared")
}

// GetStats summarises the fleet. Average battery covers devices that
// report one.
func (s *DeviceStore) GetStats() DeviceStats {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := DeviceStats{
		Total:  len(s.devices),
		ByType: make(map[string]int),
	}
	var batSum, batN int
	for _, rec := range s.devices {
		if s.online(rec, now) {
			stats.Online++
		}
		stats.ByType[string(rec.DeviceType)]++
		if rec.BatteryLevel != 0 {
			batSum += rec.BatteryLevel
			batN++
			if rec.BatteryLevel < s.lowBatteryPct {
				stats.LowBatteryCount++
			}
		}
	}
	stats.Offline = stats.Total - stats.Online
	if batN > 0 {
		stats.AvgBattery = (batSum + batN/2) / batN
	}
	return stats
}
