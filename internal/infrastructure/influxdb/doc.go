// Package influxdb exports UWB Core telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes, and health monitoring, and implements the
// stores' TelemetrySink so accepted vitals and position fixes flow into
// time-series storage as they arrive.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "carewatch",
//	    Bucket:  "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	healthStore.SetSink(client)
//	locationStore.SetSink(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
