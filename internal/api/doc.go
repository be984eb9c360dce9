// Package api implements the HTTP REST API and WebSocket server for Slotlink Core.
//
// This package provides:
//   - Account endpoints (register, login, password reset) and admin user management
//   - Slot configuration, readings, history export, camera images and alerts
//   - On/off control commands forwarded to devices over MQTT
//   - A WebSocket hub relaying readings, alerts, camera updates and device status
//   - Middleware stack (request ID, logging, recovery, CORS, JWT, role checks)
//
// # Response Envelope
//
// Every JSON response carries "success". Failures add a single human-readable
// "error"; successes carry "data" and/or "message".
//
// # Authentication
//
// Bearer JWTs issued by /api/auth/login. Browsers open the WebSocket with
// either ?token=<jwt> or a single-use ?ticket= from /api/auth/ws-ticket.
// Device-facing endpoints (POST /api/data, POST /api/camera/{n}) are open,
// matching firmware that cannot hold credentials.
//
// # Graceful Degradation
//
// The server operates without MQTT; reads and WebSocket connections work and
// only control commands fail.
package api
