// Package api provides the HTTP surface of the memory-match server.
//
// Endpoints:
//
// Room discovery:
//   - GET /api/rooms?joinable=true - List rooms, most recently active first
//   - GET /api/rooms/{id} - Masked snapshot of a live or archived room
//
// Catalogue:
//   - GET /api/themes - List built-in and file themes
//   - GET /api/rules - Board sizes, modes, scoring and power-ups
//
// Anti-cheat administration:
//   - GET /api/anticheat/{userId} - Suspicion record of a user
//   - DELETE /api/anticheat/{userId} - Clear the record and unblock the user
//
// Transport:
//   - GET /ws?user=alice&name=Alice - Upgrade to the WebSocket transport
//   - GET /healthz - Liveness check
//
// Gameplay never goes through REST. Joining, flipping and every other
// action is a WebSocket message handled by the session layer.
//
// Errors are returned as {"error": "..."} with 404 for unknown rooms and
// 400 for malformed input.
package api
