// Package api implements the HTTP REST API and WebSocket server for the
// control network core.
//
// This package provides:
//   - Status, health and metrics endpoints for operators and monitoring
//   - Node registration and signal submission
//   - Rule enable/disable, loop updates and tuning
//   - Emergency stop, reset and permit management
//   - A WebSocket hub streaming runtime events to dashboards
//
// # Error mapping
//
// Runtime errors are returned as {"status","code","message"} with the
// message carrying the reason:
//
//	capacity exceeded     → 503
//	rate limited          → 429
//	unknown node / id     → 404
//	emergency mode active → 409
//
// # WebSocket
//
// Clients connect to /api/v1/ws and subscribe to event names:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["alarmRaised","loopOutput"]}}
//
// The channel "*" receives every event.
package api
