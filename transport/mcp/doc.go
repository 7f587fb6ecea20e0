// Package mcp exposes memory-match rooms to AI agents over the Model
// Context Protocol.
//
// The Client is a thin proxy: every tool calls the REST API and formats the
// answer as text. Gameplay is not available here; agents observe rooms and
// administer the anti-cheat monitor.
//
// MCP Tools:
//   - list_rooms: rooms with status, mode and seats, optionally joinable only
//   - get_room: masked board of a live or archived room
//   - list_themes: theme catalogue
//   - game_rules: modes, scoring and power-ups
//   - suspicion_status: anti-cheat record of a user
//   - clear_suspicion: clear a record and lift a block
//
// Transport Modes:
//   - Stdio: the stdio-mcp command serves the tools on stdin/stdout
//   - HTTP: the server command mounts the same tools at /mcp
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
