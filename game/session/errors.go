package session

import (
	"errors"

	"github.com/wricardo/memory-match/game/anticheat"
	"github.com/wricardo/memory-match/game/engine"
	"github.com/wricardo/memory-match/game/service"
)

var (
	ErrRoomNotFound    = service.ErrRoomNotFound
	ErrBlocked         = anticheat.ErrBlocked
	ErrRoomClosed      = errors.New("room closed")
	ErrRoomNotJoinable = errors.New("room not joinable")
	ErrWrongPassword   = errors.New("wrong room password")
	ErrInvalidRoomID   = errors.New("invalid room ID")
	ErrInvalidUserID   = errors.New("invalid user ID")
	ErrUnknownTheme    = errors.New("unknown theme")
	ErrImpossibleClaim = errors.New("claimed matches exceed the board")
	ErrUnknownAction   = errors.New("unknown action")
	ErrShuttingDown    = errors.New("server shutting down")
)

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrRoomNotFound, "room_not_found"},
	{ErrBlocked, "blocked"},
	{ErrRoomClosed, "room_closed"},
	{ErrRoomNotJoinable, "room_not_joinable"},
	{ErrWrongPassword, "wrong_password"},
	{ErrInvalidRoomID, "invalid_room_id"},
	{ErrInvalidUserID, "invalid_user_id"},
	{ErrUnknownTheme, "unknown_theme"},
	{ErrImpossibleClaim, "impossible_match_count"},
	{ErrUnknownAction, "unknown_action"},
	{ErrShuttingDown, "shutting_down"},
}

// ReasonCode maps a Join or Dispatch error to the reason sent in
// actionRejected. Engine errors keep their engine codes.
func ReasonCode(err error) string {
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return engine.ReasonCode(err)
}
