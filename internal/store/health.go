package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carewatch/uwb-core/internal/bus"
	"github.com/carewatch/uwb-core/internal/infrastructure/config"
)

// healthContentMarker identifies wearable vitals payloads. The value is
// the device model number the firmware stamps into every vitals message.
const healthContentMarker = "300B"

// Normal vitals ranges used for abnormal-record classification.
const (
	normalHeartRateMin = 60
	normalHeartRateMax = 100
	normalSkinTempMin  = 36.0
	normalSkinTempMax  = 37.5
	normalSpO2Min      = 95
)

// HealthRecord is one wearable vitals observation. Zero-valued vitals
// fields mean the device did not report them.
type HealthRecord struct {
	MAC            string    `json:"mac"`
	GatewayID      string    `json:"gateway_id"`
	DeviceName     string    `json:"device_name"`
	HeartRate      int       `json:"heart_rate,omitempty"`
	SkinTemp       float64   `json:"skin_temp,omitempty"`
	RoomTemp       float64   `json:"room_temp,omitempty"`
	SpO2           int       `json:"spo2,omitempty"`
	BPSystolic     int       `json:"bp_systolic,omitempty"`
	BPDiastolic    int       `json:"bp_diastolic,omitempty"`
	Steps          int       `json:"steps,omitempty"`
	LightSleepMin  int       `json:"light_sleep_min,omitempty"`
	DeepSleepMin   int       `json:"deep_sleep_min,omitempty"`
	BatteryLevel   int       `json:"battery_level,omitempty"`
	SignalStrength int       `json:"signal_strength,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Abnormal reports whether any reported vital falls outside its normal
// range. Unreported fields never count as abnormal.
func (r HealthRecord) Abnormal() bool {
	if r.HeartRate != 0 && (r.HeartRate < normalHeartRateMin || r.HeartRate > normalHeartRateMax) {
		return true
	}
	if r.SkinTemp != 0 && (r.SkinTemp < normalSkinTempMin || r.SkinTemp > normalSkinTempMax) {
		return true
	}
	if r.SpO2 != 0 && r.SpO2 < normalSpO2Min {
		return true
	}
	return false
}

// HealthStats summarises the store contents.
type HealthStats struct {
	TotalRecords  int     `json:"total_records"`
	TotalDevices  int     `json:"total_devices"`
	AvgHeartRate  int     `json:"avg_heart_rate"`
	AvgSkinTemp   float64 `json:"avg_skin_temp"`
	AvgSpO2       int     `json:"avg_spo2"`
	AbnormalCount int     `json:"abnormal_count"`
}

// HealthStore accumulates wearable vitals history per device.
//
// Records are keyed by "gatewayID:MAC" and kept newest first, capped per
// device. A record arriving within the dedupe window of an existing one
// for the same key is discarded as a broker redelivery.
//
// Safe for concurrent use.
type HealthStore struct {
	mu      sync.RWMutex
	records map[string][]HealthRecord

	maxPerDevice int
	dedupeWindow time.Duration
	logger       Logger
	sink         TelemetrySink
	unsub        func()
}

// NewHealth creates a health store. A nil logger disables logging.
func NewHealth(cfg config.HealthStoreConfig, logger Logger) *HealthStore {
	if logger == nil {
		logger = noopLogger{}
	}
	maxPerDevice := cfg.MaxRecordsPerDevice
	if maxPerDevice <= 0 {
		maxPerDevice = config.DefaultHealthMaxRecords
	}
	window := time.Duration(cfg.DedupeWindowMS) * time.Millisecond
	if window <= 0 {
		window = config.DefaultHealthDedupeMS * time.Millisecond
	}
	return &HealthStore{
		records:      make(map[string][]HealthRecord),
		maxPerDevice: maxPerDevice,
		dedupeWindow: window,
		logger:       logger,
	}
}

// SetSink attaches a telemetry sink for accepted records. Call before
// Start.
func (s *HealthStore) SetSink(sink TelemetrySink) {
	s.sink = sink
}

// Start subscribes the store to health-channel traffic.
func (s *HealthStore) Start(t bus.Transport) {
	s.unsub = t.SubscribePattern("health-store", bus.PatternHealth, 0, s.process)
	s.logger.Info("health store wired")
}

// Stop removes the store's subscription.
func (s *HealthStore) Stop() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// process consumes one health-channel message. Non-vitals payloads and
// payloads missing a MAC are dropped.
func (s *HealthStore) process(msg bus.Message) {
	data := msg.Object()
	if data == nil || msg.Content() != healthContentMarker {
		return
	}

	mac := stringField(data, macAliases)
	if mac == "" {
		s.logger.Warn("health payload missing MAC", "topic", msg.Topic)
		return
	}

	rec := HealthRecord{
		MAC:            mac,
		GatewayID:      msg.GatewayID(),
		DeviceName:     stringField(data, deviceNameAliases),
		HeartRate:      intField(data, heartRateAliases),
		SkinTemp:       floatField(data, skinTempAliases),
		RoomTemp:       floatField(data, roomTempAliases),
		SpO2:           intField(data, spo2Aliases),
		BPSystolic:     intField(data, bpSystAliases),
		BPDiastolic:    intField(data, bpDiastAliases),
		Steps:          intField(data, stepsAliases),
		LightSleepMin:  intField(data, lightSleepAliases),
		DeepSleepMin:   intField(data, deepSleepAliases),
		BatteryLevel:   intField(data, batteryAliases),
		SignalStrength: intField(data, signalAliases),
		Timestamp:      msg.Timestamp,
	}
	if rec.DeviceName == "" && len(mac) >= 8 {
		rec.DeviceName = fmt.Sprintf("Device %s", mac[len(mac)-8:])
	}

	key := rec.GatewayID + ":" + rec.MAC

	s.mu.Lock()
	existing := s.records[key]
	for _, old := range existing {
		delta := rec.Timestamp.Sub(old.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta < s.dedupeWindow {
			s.mu.Unlock()
			s.logger.Debug("duplicate health record dropped", "key", key)
			return
		}
		// Newest first: once past the window nothing older can match.
		break
	}
	updated := append([]HealthRecord{rec}, existing...)
	if len(updated) > s.maxPerDevice {
		updated = updated[:s.maxPerDevice]
	}
	s.records[key] = updated
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.WriteHealth(rec)
	}
}

// RecordsByGateway returns every record from the given gateway, newest
// first.
func (s *HealthStore) RecordsByGateway(gatewayID string) []HealthRecord {
	s.mu.RLock()
	var out []HealthRecord
	prefix := gatewayID + ":"
	for key, recs := range s.records {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, recs...)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out
}

// RecordsByDevice returns every record for the given device MAC across
// all gateways, newest first.
func (s *HealthStore) RecordsByDevice(mac string) []HealthRecord {
	s.mu.RLock()
	var out []HealthRecord
	for _, recs := range s.records {
		for _, r := range recs {
			if r.MAC == mac {
				out = append(out, r)
			}
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out
}

// LatestByDevice returns the most recent record for the device.
func (s *HealthStore) LatestByDevice(mac string) (HealthRecord, bool) {
	recs := s.RecordsByDevice(mac)
	if len(recs) == 0 {
		return HealthRecord{}, false
	}
	return recs[0], true
}

// Devices returns the MAC addresses of every device seen, sorted.
func (s *HealthStore) Devices() []string {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, recs := range s.records {
		for _, r := range recs {
			seen[r.MAC] = struct{}{}
		}
	}
	s.mu.RUnlock()

	macs := make([]string, 0, len(seen))
	for mac := range seen {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs
}

// Clear discards all records.
func (s *HealthStore) Clear() {
	s.mu.Lock()
	s.records = make(map[string][]HealthRecord)
	s.mu.Unlock()
	s.logger.Info("health records cleared")
}

// GetStats summarises all records, or a single gateway's when gatewayID
// is non-empty. Averages cover only records that report the field.
func (s *HealthStore) GetStats(gatewayID string) HealthStats {
	var records []HealthRecord
	if gatewayID != "" {
		records = s.RecordsByGateway(gatewayID)
	} else {
		s.mu.RLock()
		for _, recs := range s.records {
			records = append(records, recs...)
		}
		s.mu.RUnlock()
	}

	if len(records) == 0 {
		return HealthStats{}
	}

	devices := make(map[string]struct{})
	var hrSum, hrN, spo2Sum, spo2N, abnormal int
	var tempSum float64
	var tempN int
	for _, r := range records {
		devices[r.MAC] = struct{}{}
		if r.HeartRate != 0 {
			hrSum += r.HeartRate
			hrN++
		}
		if r.SkinTemp != 0 {
			tempSum += r.SkinTemp
			tempN++
		}
		if r.SpO2 != 0 {
			spo2Sum += r.SpO2
			spo2N++
		}
		if r.Abnormal() {
			abnormal++
		}
	}

	stats := HealthStats{
		TotalRecords:  len(records),
		TotalDevices:  len(devices),
		AbnormalCount: abnormal,
	}
	if hrN > 0 {
		stats.AvgHeartRate = (hrSum + hrN/2) / hrN
	}
	if tempN > 0 {
		stats.AvgSkinTemp = float64(int(tempSum/float64(tempN)*10+0.5)) / 10
	}
	if spo2N > 0 {
		stats.AvgSpO2 = (spo2Sum + spo2N/2) / spo2N
	}
	return stats
}

func sortNewestFirst(recs []HealthRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp.After(recs[j].Timestamp)
	})
}
