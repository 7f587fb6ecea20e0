package engine

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusStarting   Status = "starting"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusFinished   Status = "finished"
)

// Mode is the ruleset variant controlling timer and scoring.
type Mode string

const (
	ModeStandard    Mode = "standard"
	ModeSpeed       Mode = "speed"
	ModeTieBreak    Mode = "tie_break"
	ModePowerFrenzy Mode = "power_frenzy"
)

// EndReason explains why a session finished.
type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndTimeout   EndReason = "timeout"
	EndAbandoned EndReason = "abandoned"
	EndNoContest EndReason = "no_contest"
	EndError     EndReason = "error"
)

// PowerUpKind identifies one of the six power-up effects.
type PowerUpKind string

const (
	ExtraTurn PowerUpKind = "extra_turn"
	Peek      PowerUpKind = "peek"
	Swap      PowerUpKind = "swap"
	RevealOne PowerUpKind = "reveal_one"
	Freeze    PowerUpKind = "freeze"
	Shuffle   PowerUpKind = "shuffle"
)

// Game constants
const (
	MinParticipants      = 2
	MaxParticipantsLimit = 8
	MaxFaceUp            = 2
	MaxChatLength        = 500
	MaxChatHistory       = 100
	TieBreakSeconds      = 30
	MaxTieBreakRounds    = 5
	DefaultSpeedSeconds  = 90
	DefaultFrenzySeconds = 120
	PeekDurationMs       = 3000
	FreezeDurationMs     = 10000
	BaseMatchPoints      = 100
	StreakBonusPoints    = 25
)

// PowerUp is a collectible effect. Once collected it belongs to exactly one participant.
type PowerUp struct {
	Kind          PowerUpKind `json:"kind"`
	UsesRemaining int         `json:"uses_remaining"`
	DurationMs    *int        `json:"duration_ms,omitempty"`
}

// Tile is one face of the board. ID is stable for the lifetime of a board.
type Tile struct {
	ID      int      `json:"id"`
	Value   string   `json:"value"`
	Theme   string   `json:"theme"`
	FaceUp  bool     `json:"face_up"`
	Matched bool     `json:"matched"`
	PowerUp *PowerUp `json:"power_up,omitempty"`
}

// Participant is a user attached to a session.
type Participant struct {
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Score          int       `json:"score"`
	MatchesFound   int       `json:"matches_found"`
	FlipsMade      int       `json:"flips_made"`
	PowerUps       []PowerUp `json:"power_ups"`
	IsCurrentTurn  bool      `json:"is_current_turn"`
	MatchStreak    int       `json:"match_streak"`
	MatchStreakMax int       `json:"match_streak_max"`
	PowerUpsUsed   int       `json:"power_ups_used"`
	Ready          bool      `json:"ready"`
	Connected      bool      `json:"connected"`
	JoinedAt       time.Time `json:"joined_at"`
}

// ChatMessage is one entry of the session chat log.
type ChatMessage struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`
}

// RoomSettings are fixed when a room is created.
type RoomSettings struct {
	BoardSize        int    `json:"board_size" yaml:"board_size"`
	Theme            string `json:"theme" yaml:"theme"`
	PowerUps         bool   `json:"power_ups" yaml:"power_ups"`
	Mode             Mode   `json:"mode" yaml:"mode"`
	MaxParticipants  int    `json:"max_participants" yaml:"max_participants"`
	TimeLimitSeconds int    `json:"time_limit_seconds,omitempty" yaml:"time_limit_seconds"`
	Password         string `json:"-" yaml:"-"`
}

// Theme is a named symbol set used to build boards.
type Theme struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Symbols     []string `json:"symbols" yaml:"symbols"`
}

// GameState is the authoritative record for one room.
type GameState struct {
	RoomID           string         `json:"room_id"`
	Settings         RoomSettings   `json:"settings"`
	Participants     []*Participant `json:"participants"`
	Departed         []Participant  `json:"departed,omitempty"`
	Tiles            []Tile         `json:"tiles"`
	FaceUpTileIDs    []int          `json:"face_up_tile_ids"`
	ResolvingUserID  string         `json:"resolving_user_id,omitempty"`
	TurnIndex        int            `json:"turn_index"`
	Status           Status         `json:"status"`
	Mode             Mode           `json:"mode"`
	BaseMode         Mode           `json:"base_mode"`
	SecondsRemaining *int           `json:"seconds_remaining"`
	TimerFrozen      bool           `json:"timer_frozen"`
	ExpiryPending    bool           `json:"expiry_pending,omitempty"`
	Round            int            `json:"round"`
	TieBreakRounds   int            `json:"tie_break_rounds"`
	Eligible         []string       `json:"eligible,omitempty"`
	PairsPlayed      int            `json:"pairs_played"`
	Chat             []ChatMessage  `json:"chat"`
	CreatedAt        time.Time      `json:"created_at"`
	StartedAt        time.Time      `json:"started_at"`
	EndedAt          time.Time      `json:"ended_at"`
	LastActivity     time.Time      `json:"last_activity"`
	WinnerUserID     *string        `json:"winner_user_id"`
	EndReason        EndReason      `json:"end_reason,omitempty"`
}

// GameResult is the per-participant outcome handed to the statistics collaborator.
type GameResult struct {
	RoomID         string    `json:"room_id"`
	UserID         string    `json:"user_id"`
	Won            bool      `json:"won"`
	Score          int       `json:"score"`
	MatchesFound   int       `json:"matches_found"`
	FlipsMade      int       `json:"flips_made"`
	MatchStreakMax int       `json:"match_streak_max"`
	PowerUpsUsed   int       `json:"power_ups_used"`
	Mode           Mode      `json:"mode"`
	BoardSize      int       `json:"board_size"`
	DurationMs     int64     `json:"duration_ms"`
	EndReason      EndReason `json:"end_reason"`
	EndedAt        time.Time `json:"ended_at"`
}
