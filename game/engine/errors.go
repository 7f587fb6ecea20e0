package engine

import (
	"errors"
	"fmt"
)

// Action precondition failures. Each one is reported to the acting participant only.
var (
	ErrNotYourTurn        = errors.New("not your turn")
	ErrGameNotInProgress  = errors.New("game not in progress")
	ErrPairResolving      = fmt.Errorf("%w: pair resolution pending", ErrGameNotInProgress)
	ErrUnknownTile        = errors.New("unknown tile")
	ErrTileAlreadyFaceUp  = errors.New("tile already face up")
	ErrTileAlreadyMatched = errors.New("tile already matched")
	ErrPowerUpNotHeld     = errors.New("power-up not held")
	ErrPowerUpPassive     = errors.New("power-up is passive")
	ErrUnknownPowerUp     = errors.New("unknown power-up kind")
	ErrInvalidTarget      = errors.New("invalid power-up target")
	ErrNoCountdown        = errors.New("no countdown running")
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyJoined      = errors.New("already joined")
	ErrNotParticipant     = errors.New("not a participant")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrNotWaiting         = errors.New("room is not waiting for players")
	ErrChatEmpty          = errors.New("chat message is empty")
	ErrChatTooLong        = errors.New("chat message too long")
)

// Board and settings failures.
var (
	ErrInsufficientThemeSymbols = errors.New("insufficient theme symbols")
	ErrInvalidBoardSize         = errors.New("invalid board size")
	ErrInvalidSettings          = errors.New("invalid room settings")
	ErrInvariantViolation       = errors.New("invariant violation")
)

type reasonCode struct {
	err        error
	code       string
	structural bool
}

// Order matters: ErrPairResolving must be matched before ErrGameNotInProgress.
var reasonCodes = []reasonCode{
	{ErrNotYourTurn, "not_your_turn", true},
	{ErrPairResolving, "pair_resolving", false},
	{ErrGameNotInProgress, "game_not_in_progress", false},
	{ErrUnknownTile, "unknown_tile", true},
	{ErrTileAlreadyFaceUp, "tile_already_face_up", true},
	{ErrTileAlreadyMatched, "tile_already_matched", true},
	{ErrPowerUpNotHeld, "power_up_not_held", true},
	{ErrPowerUpPassive, "power_up_passive", false},
	{ErrUnknownPowerUp, "unknown_power_up", false},
	{ErrInvalidTarget, "invalid_target", false},
	{ErrNoCountdown, "no_countdown", false},
	{ErrRoomFull, "room_full", false},
	{ErrAlreadyJoined, "already_joined", false},
	{ErrNotParticipant, "not_participant", false},
	{ErrGameAlreadyStarted, "game_already_started", false},
	{ErrNotWaiting, "not_waiting", false},
	{ErrChatEmpty, "chat_empty", false},
	{ErrChatTooLong, "chat_too_long", false},
	{ErrInsufficientThemeSymbols, "insufficient_theme_symbols", false},
	{ErrInvalidBoardSize, "invalid_board_size", false},
	{ErrInvalidSettings, "invalid_settings", false},
}

// ReasonCode returns the machine-readable code for an engine error, or "error"
// for anything the engine does not know about.
func ReasonCode(err error) string {
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return "error"
}

// IsStructural reports whether err is a structural violation: an action that a
// well-behaved client can never send because it contradicts visible state.
func IsStructural(err error) bool {
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.structural
		}
	}
	return false
}
