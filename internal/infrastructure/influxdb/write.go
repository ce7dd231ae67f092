package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/carewatch/uwb-core/internal/store"
)

// Client satisfies the stores' telemetry sink.
var _ store.TelemetrySink = (*Client)(nil)

// WriteHealth records one vitals report in the "vitals" measurement.
//
// Zero-valued vitals mean "not reported" and are omitted from the
// point, mirroring how the stores treat them. The write is
// non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteHealth(rec store.HealthRecord) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{}
	addInt := func(name string, v int) {
		if v != 0 {
			fields[name] = v
		}
	}
	addInt("heart_rate", rec.HeartRate)
	addInt("spo2", rec.SpO2)
	addInt("bp_systolic", rec.BPSystolic)
	addInt("bp_diastolic", rec.BPDiastolic)
	addInt("steps", rec.Steps)
	addInt("light_sleep_min", rec.LightSleepMin)
	addInt("deep_sleep_min", rec.DeepSleepMin)
	addInt("battery_level", rec.BatteryLevel)
	addInt("signal_strength", rec.SignalStrength)
	if rec.SkinTemp != 0 {
		fields["skin_temp"] = rec.SkinTemp
	}
	if rec.RoomTemp != 0 {
		fields["room_temp"] = rec.RoomTemp
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"vitals",
		map[string]string{
			"mac":        rec.MAC,
			"gateway_id": rec.GatewayID,
		},
		fields,
		rec.Timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteLocation records one position fix in the "position" measurement.
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteLocation(rec store.LocationRecord) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id":  rec.DeviceID,
		"gateway_id": rec.GatewayID,
	}
	if rec.FloorID != "" {
		tags["floor_id"] = rec.FloorID
	}

	fields := map[string]interface{}{
		"x": rec.Position.X,
		"y": rec.Position.Y,
		"z": rec.Position.Z,
	}
	if rec.Position.Quality > 0 {
		fields["quality"] = rec.Position.Quality
	}

	point := write.NewPoint("position", tags, fields, rec.Timestamp)
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and
// fields, for measurements that don't fit the sink methods.
//
//	client.WritePoint("bus_stats",
//	    map[string]string{"site": "site-001"},
//	    map[string]interface{}{"messages_total": 4512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
