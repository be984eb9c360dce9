// Package telemetry ingests slot readings and evaluates them against the
// slot's alert thresholds.
//
// Both transports (the MQTT listener and POST /api/data) call
// Ingestor.Ingest. A reading is stored before it is evaluated, and
// evaluation completes before Ingest returns, so a caller that sees success
// can immediately query the alerts it caused. Secondary sinks (InfluxDB,
// Redis, the WebSocket hub) are attached as Mirrors and are best effort.
package telemetry
