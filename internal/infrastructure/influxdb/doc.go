// Package influxdb records entity value history in InfluxDB v2.
//
// Recording is optional; when disabled in configuration the rest of the
// service runs unaffected. Every accepted value update, availability
// change and momentary event becomes one point, batched and written
// asynchronously by the underlying client.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordValue(record, 21.5)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking; batch errors are delivered via the error
// callback set with SetOnError.
package influxdb
