package service

import (
	"context"
	"errors"

	"github.com/wricardo/memory-match/game/anticheat"
	"github.com/wricardo/memory-match/game/engine"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrInvalidUserID = errors.New("invalid user ID")
)

// GameService defines the read and administrative operations exposed over
// REST and MCP. Gameplay itself flows through the WebSocket transport.
type GameService interface {
	// Rooms
	ListRooms(ctx context.Context, joinableOnly bool) ([]RoomSummary, error)
	GetRoom(ctx context.Context, roomID string) (*RoomInfo, error)

	// Configuration
	ListThemes(ctx context.Context) ([]ThemeInfo, error)
	GetRules(ctx context.Context) *RulesInfo

	// Anti-cheat administration
	GetSuspicion(ctx context.Context, userID string) (*SuspicionInfo, error)
	ClearSuspicion(ctx context.Context, userID string) (bool, error)
}

// RoomRegistry is the live room registry.
type RoomRegistry interface {
	Summaries(joinableOnly bool) []RoomSummary
	Snapshot(ctx context.Context, roomID string) (engine.View, bool, error)
}

// ThemeCatalog lists the available themes.
type ThemeCatalog interface {
	ListThemes() ([]ThemeInfo, error)
}

// SuspicionStore exposes anti-cheat records.
type SuspicionStore interface {
	Status(userID string) (anticheat.Status, bool)
	Clear(userID string) bool
}
