// Package session hosts live memory-match rooms.
//
// Every room is owned by a single goroutine (the room actor) which holds
// the room's engine.GameEngine and processes joins, leaves, disconnects and
// player actions one at a time from its inbox. Reveal delays, countdown
// ticks, freeze windows and reconnect grace periods are scheduled with
// time.AfterFunc and delivered back to the same inbox, tagged with a timer
// generation so that a cancelled timer can never act late.
//
// Manager:
//
// Manager is the room registry. It creates rooms on first join, routes
// requests to the owning actor and removes rooms once they close. It also
// implements service.RoomRegistry so the HTTP and MCP surfaces can list
// rooms and read snapshots without touching engine state directly.
//
//	manager := session.NewManager(themes,
//		session.WithPersistence(store),
//		session.WithGuard(monitor),
//		session.WithPublisher(hub),
//		session.WithLogger(logger))
//
//	roomID, err := manager.Join(ctx, session.JoinRequest{UserID: "alice"})
//	err = manager.Dispatch(ctx, roomID, "alice", session.Action{Type: session.ActionToggleReady})
//
// Anti-cheat:
//
// Before an action reaches the engine the room records it with the Guard,
// compares the client's state digest and checks any claimed match count.
// Structural rejections from the engine are flagged as well. Blocked users
// are refused at Join and on every Dispatch.
//
// Persistence:
//
// Snapshots are written by a per-room saver goroutine at game start, after
// every resolved pair, when a tie-break begins and when the game ends.
// RestoreRooms brings running games back after a restart with every
// participant disconnected, which opens their grace windows.
package session
