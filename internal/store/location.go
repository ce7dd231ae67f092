package store

import (
	"sort"
	"sync"
	"time"

	"github.com/carewatch/uwb-core/internal/bus"
	"github.com/carewatch/uwb-core/internal/infrastructure/config"
)

// locationContentMarker identifies position-fix payloads.
const locationContentMarker = "location"

// LocationRecord is one UWB position fix for a tracked device.
type LocationRecord struct {
	DeviceID     string    `json:"device_id"`
	GatewayID    string    `json:"gateway_id"`
	Position     Position  `json:"position"`
	FloorID      string    `json:"floor_id,omitempty"`
	DeviceName   string    `json:"device_name,omitempty"`
	ResidentID   string    `json:"resident_id,omitempty"`
	ResidentName string    `json:"resident_name,omitempty"`
	ResidentRoom string    `json:"resident_room,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// LocationStats summarises positioning activity.
type LocationStats struct {
	TotalDevices   int `json:"total_devices"`
	OnlineDevices  int `json:"online_devices"`
	OfflineDevices int `json:"offline_devices"`
	AvgQuality     int `json:"avg_quality"`
}

// LocationStore tracks the current position and bounded movement history
// of every device.
//
// Liveness is never stored: a device is online exactly when its latest
// fix is younger than the expiry window, evaluated at query time. Stale
// devices therefore drop out of queries with no sweeper goroutine.
//
// Safe for concurrent use.
type LocationStore struct {
	mu      sync.RWMutex
	current map[string]LocationRecord
	history map[string][]LocationRecord

	maxHistory int
	expiry     time.Duration
	logger     Logger
	sink       TelemetrySink
	unsub      func()
}

// NewLocation creates a location store. A nil logger disables logging.
func NewLocation(cfg config.LocationStoreConfig, logger Logger) *LocationStore {
	if logger == nil {
		logger = noopLogger{}
	}
	maxHistory := cfg.MaxHistoryPerDevice
	if maxHistory <= 0 {
		maxHistory = config.DefaultLocationMaxHistory
	}
	expiry := time.Duration(cfg.ExpiryMS) * time.Millisecond
	if expiry <= 0 {
		expiry = config.DefaultLocationExpiryMS * time.Millisecond
	}
	return &LocationStore{
		current:    make(map[string]LocationRecord),
		history:    make(map[string][]LocationRecord),
		maxHistory: maxHistory,
		expiry:     expiry,
		logger:     logger,
	}
}

// SetSink attaches a telemetry sink for accepted records. Call before
// Start.
func (s *LocationStore) SetSink(sink TelemetrySink) {
	s.sink = sink
}

// Start subscribes the store to location-channel traffic.
func (s *LocationStore) Start(t bus.Transport) {
	s.unsub = t.SubscribePattern("location-store", bus.PatternLocation, 0, s.process)
	s.logger.Info("location store wired")
}

// Stop removes the store's subscription.
func (s *LocationStore) Stop() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// process consumes one location-channel message. Payloads without a
// device id or a well-formed position are dropped.
func (s *LocationStore) process(msg bus.Message) {
	data := msg.Object()
	if data == nil || msg.Content() != locationContentMarker {
		return
	}

	deviceID := stringField(data, []string{"id"})
	if deviceID == "" {
		s.logger.Warn("location payload missing device id", "topic", msg.Topic)
		return
	}
	pos, ok := parsePosition(data)
	if !ok {
		s.logger.Warn("location payload malformed position", "topic", msg.Topic, "device", deviceID)
		return
	}

	rec := LocationRecord{
		DeviceID:     deviceID,
		GatewayID:    msg.GatewayID(),
		Position:     pos,
		FloorID:      stringField(data, floorIDAliases),
		DeviceName:   stringField(data, deviceNameAliases),
		ResidentID:   stringField(data, residentIDAliases),
		ResidentName: stringField(data, residentNameAlias),
		ResidentRoom: stringField(data, residentRoomAlias),
		Timestamp:    msg.Timestamp,
	}

	s.mu.Lock()
	s.current[deviceID] = rec
	hist := append([]LocationRecord{rec}, s.history[deviceID]...)
	if len(hist) > s.maxHistory {
		hist = hist[:s.maxHistory]
	}
	s.history[deviceID] = hist
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.WriteLocation(rec)
	}
}

func (s *LocationStore) expired(rec LocationRecord, now time.Time) bool {
	return now.Sub(rec.Timestamp) > s.expiry
}

// CurrentLocation returns the device's latest fix, or false when the
// device is unknown or its fix has expired.
func (s *LocationStore) CurrentLocation(deviceID string) (LocationRecord, bool) {
	s.mu.RLock()
	rec, ok := s.current[deviceID]
	s.mu.RUnlock()

	if !ok || s.expired(rec, time.Now()) {
		return LocationRecord{}, false
	}
	return rec, true
}

// LocationsByGateway returns unexpired fixes from the given gateway,
// newest first.
func (s *LocationStore) LocationsByGateway(gatewayID string) []LocationRecord {
	return s.filterCurrent(func(rec LocationRecord) bool {
		return rec.GatewayID == gatewayID
	})
}

// LocationsByFloor returns unexpired fixes on the given floor, newest
// first.
func (s *LocationStore) LocationsByFloor(floorID string) []LocationRecord {
	return s.filterCurrent(func(rec LocationRecord) bool {
		return rec.FloorID == floorID
	})
}

// OnlineDevices returns every device with an unexpired fix, newest
// first.
func (s *LocationStore) OnlineDevices() []LocationRecord {
	return s.filterCurrent(func(LocationRecord) bool { return true })
}

func (s *LocationStore) filterCurrent(keep func(LocationRecord) bool) []LocationRecord {
	now := time.Now()

	s.mu.RLock()
	var out []LocationRecord
	for _, rec := range s.current {
		if keep(rec) && !s.expired(rec, now) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// DeviceHistory returns the device's movement history, newest first,
// capped at limit (0 means all retained history). History is returned
// regardless of expiry; it is a trail, not a liveness signal.
func (s *LocationStore) DeviceHistory(deviceID string, limit int) []LocationRecord {
	s.mu.RLock()
	hist := s.history[deviceID]
	out := make([]LocationRecord, len(hist))
	copy(out, hist)
	s.mu.RUnlock()

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ClearHistory discards movement history but keeps current fixes.
func (s *LocationStore) ClearHistory() {
	s.mu.Lock()
	s.history = make(map[string][]LocationRecord)
	s.mu.Unlock()
	s.logger.Info("location history cleared")
}

// GetStats summarises positioning activity, scoped to one gateway when
// gatewayID is non-empty. Average quality covers online devices with a
// reported quality.
func (s *LocationStore) GetStats(gatewayID string) LocationStats {
	var online []LocationRecord
	if gatewayID != "" {
		online = s.LocationsByGateway(gatewayID)
	} else {
		online = s.OnlineDevices()
	}

	s.mu.RLock()
	total := len(s.current)
	s.mu.RUnlock()

	var qSum float64
	var qN int
	for _, rec := range online {
		if rec.Position.Quality > 0 {
			qSum += rec.Position.Quality
			qN++
		}
	}

	stats := LocationStats{
		TotalDevices:   total,
		OnlineDevices:  len(online),
		OfflineDevices: total - len(online),
	}
	if qN > 0 {
		stats.AvgQuality = int(qSum/float64(qN) + 0.5)
	}
	return stats
}
