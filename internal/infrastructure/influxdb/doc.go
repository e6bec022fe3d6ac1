// Package influxdb provides InfluxDB connectivity for Weft.
//
// It wraps the official influxdb-client-go v2 library with Weft-specific
// patterns for connection management, property history writing, and
// health monitoring.
//
// # Purpose
//
// This package is the sink for property-change history: every recorded
// state or config change of a hosted endpoint becomes one point, tagged
// by endpoint, section, trait and property.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "weft",
//	    Bucket: "history",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePropertyChange("lamp-kitchen", keyLevel, 0.8, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). This reduces network overhead for chatty endpoints.
package influxdb
