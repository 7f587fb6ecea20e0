// Package engine provides the rules of a multiplayer memory-matching session.
//
// The engine package implements the game mechanics including:
//   - Board generation with a Fisher-Yates shuffle and power-up placement
//   - The turn/flip state machine and pair resolution with streak scoring
//   - Power-up effects (ExtraTurn, Peek, Swap, RevealOne, Freeze, Shuffle)
//   - Countdown handling and tie-break rounds
//   - Masked client views and the public state digest
//
// Core Types:
//
// The Engine interface defines the main contract for session operations,
// implemented by GameEngine. GameState is the authoritative record of one
// room; View is its masked projection. Every mutating call returns the
// Events it produced and never publishes them itself, so the caller decides
// who receives what.
//
// Usage:
//
//	e, err := engine.NewEngine("lobby", engine.DefaultSettings(), theme)
//	if err != nil {
//		return err
//	}
//
//	events, err := e.AddParticipant("alice", "Alice")
//	...
//	events, err = e.Flip("alice", 3)
//	if e.PairPending() {
//		// after the reveal delay
//		events = e.ResolvePair()
//	}
//
// GameEngine is not safe for concurrent use. The session package runs one
// goroutine per room that owns its engine.
package engine
