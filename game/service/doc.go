// Package service provides the read and administrative layer of the memory
// match server.
//
// The service package implements:
//   - Room discovery and masked room snapshots
//   - The theme catalogue
//   - Anti-cheat administration (inspect and clear a user's record)
//   - A rules summary for clients and operators
//
// Core Interfaces:
//
// GameService is the facade used by the REST API and the MCP tools.
// RoomRegistry is implemented by session.Manager, ThemeCatalog by
// config.Manager and SuspicionStore by anticheat.Monitor.
//
// Architecture:
//
// Gameplay actions never pass through this package. They travel over the
// WebSocket transport straight to the room goroutines owned by the session
// manager; the service only reads projections those rooms publish.
//
// Usage:
//
//	svc := service.NewGameService(sessionMgr, configMgr, monitor)
//
//	rooms, err := svc.ListRooms(ctx, true)
//	if err != nil {
//		return err
//	}
package service
