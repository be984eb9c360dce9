// Package influxdb mirrors slot telemetry into InfluxDB v2.
//
// Numeric readings are written to the slot_readings measurement (tags slot
// and type, fields value and name) and threshold alerts to slot_alerts
// (tags slot and alert_type, fields message and count). Non-numeric readings
// are not mirrored.
//
// Writes are non-blocking and batched according to influxdb.batch_size and
// influxdb.flush_interval. Asynchronous write failures reach the callback
// set with SetOnError; they never affect ingestion.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // mirroring off
//	}
//	defer client.Close()
//	client.WriteReading(3, "value", "Greenhouse", 21.5, time.Now())
package influxdb
