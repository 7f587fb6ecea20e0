package service

import (
	"time"

	"github.com/wricardo/memory-match/game/anticheat"
	"github.com/wricardo/memory-match/game/engine"
)

// RoomSummary is the discovery projection of a room.
type RoomSummary struct {
	RoomID           string        `json:"room_id"`
	ParticipantCount int           `json:"participant_count"`
	MaxParticipants  int           `json:"max_participants"`
	Mode             engine.Mode   `json:"mode"`
	BoardSize        int           `json:"board_size"`
	Status           engine.Status `json:"status"`
	HasPassword      bool          `json:"has_password"`
	LastActivity     time.Time     `json:"last_activity"`
}

// Joinable reports whether a newcomer could join the room.
func (s RoomSummary) Joinable() bool {
	return s.Status == engine.StatusWaiting && s.ParticipantCount < s.MaxParticipants
}

// RoomInfo is a masked room snapshot. Archived is set when the room is no
// longer live and the view comes from a persisted snapshot.
type RoomInfo struct {
	Room     engine.View `json:"room"`
	Archived bool        `json:"archived"`
}

// ThemeInfo describes a theme in the catalogue.
type ThemeInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Filename     string `json:"filename,omitempty"`
	SymbolCount  int    `json:"symbol_count"`
	MaxBoardSize int    `json:"max_board_size"`
	BuiltIn      bool   `json:"built_in"`
}

// SuspicionInfo is the administrative view of a user's anti-cheat record.
type SuspicionInfo struct {
	UserID         string                `json:"user_id"`
	Known          bool                  `json:"known"`
	ViolationCount int                   `json:"violation_count"`
	Blocked        bool                  `json:"blocked"`
	HistorySize    int                   `json:"history_size"`
	Reasons        []anticheat.Violation `json:"reasons"`
}

// ModeInfo describes a game mode.
type ModeInfo struct {
	Mode             engine.Mode `json:"mode"`
	ScoreMultiplier  float64     `json:"score_multiplier"`
	CountdownSeconds *int        `json:"countdown_seconds"`
	TurnAfterMatch   string      `json:"turn_after_match"`
	PowerUpFraction  float64     `json:"power_up_fraction"`
}

// PowerUpInfo describes a power-up.
type PowerUpInfo struct {
	Kind        engine.PowerUpKind `json:"kind"`
	Description string             `json:"description"`
	Targets     int                `json:"targets"`
	Passive     bool               `json:"passive,omitempty"`
}

// RulesInfo summarizes the rules for clients and operators.
type RulesInfo struct {
	BoardSizes        []int         `json:"board_sizes"`
	MinParticipants   int           `json:"min_participants"`
	MaxParticipants   int           `json:"max_participants"`
	BaseMatchPoints   int           `json:"base_match_points"`
	StreakBonusPoints int           `json:"streak_bonus_points"`
	TieBreakSeconds   int           `json:"tie_break_seconds"`
	MaxTieBreaks      int           `json:"max_tie_breaks"`
	Modes             []ModeInfo    `json:"modes"`
	PowerUps          []PowerUpInfo `json:"power_ups"`
}
