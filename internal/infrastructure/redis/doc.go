// Package redis keeps a hot copy of each slot's latest value in Redis.
//
// The ingestor writes through on every stored reading; SQLite remains the
// system of record. Other services on the same Redis (dashboards, kiosks)
// read slot:last:{n} without touching the backend's database.
//
// Each key is a hash with fields value and at (RFC 3339, milliseconds) and
// expires after redis.latest_ttl seconds so retired slots age out.
package redis
