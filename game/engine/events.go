package engine

// EventKind identifies an outbound event.
type EventKind string

const (
	EventJoined                  EventKind = "joined"
	EventParticipantJoined       EventKind = "participantJoined"
	EventParticipantLeft         EventKind = "participantLeft"
	EventParticipantDisconnected EventKind = "participantDisconnected"
	EventParticipantReconnected  EventKind = "participantReconnected"
	EventReadyChanged            EventKind = "readyChanged"
	EventStarted                 EventKind = "started"
	EventTileFlipped             EventKind = "tileFlipped"
	EventPairMatched             EventKind = "pairMatched"
	EventPairMismatched          EventKind = "pairMismatched"
	EventTurnChanged             EventKind = "turnChanged"
	EventPowerUpGranted          EventKind = "powerUpGranted"
	EventPowerUpUsed             EventKind = "powerUpUsed"
	EventPeek                    EventKind = "peek"
	EventTileRevealed            EventKind = "tileRevealed"
	EventTilesSwapped            EventKind = "tilesSwapped"
	EventBoardShuffled           EventKind = "boardShuffled"
	EventTimerFrozen             EventKind = "timerFrozen"
	EventTimerResumed            EventKind = "timerResumed"
	EventPaused                  EventKind = "paused"
	EventResumed                 EventKind = "resumed"
	EventTimeRemaining           EventKind = "timeRemaining"
	EventTieBreakStarted         EventKind = "tieBreakStarted"
	EventChatMessage             EventKind = "chatMessage"
	EventEnded                   EventKind = "ended"
	EventActionRejected          EventKind = "actionRejected"
)

// Event is an outbound notification. Empty Recipients means every attached connection.
type Event struct {
	Kind       EventKind `json:"type"`
	RoomID     string    `json:"room_id"`
	Payload    any       `json:"payload,omitempty"`
	Recipients []string  `json:"-"`
}

// ParticipantPayload names a participant that joined, left, disconnected or reconnected.
type ParticipantPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// ReadyPayload accompanies readyChanged.
type ReadyPayload struct {
	UserID string `json:"user_id"`
	Ready  bool   `json:"ready"`
	Status Status `json:"status"`
}

// TileFlippedPayload carries the revealed tile.
type TileFlippedPayload struct {
	UserID string   `json:"user_id"`
	Tile   TileView `json:"tile"`
}

// PairPayload accompanies pairMatched and pairMismatched.
type PairPayload struct {
	UserID      string `json:"user_id"`
	TileIDs     [2]int `json:"tile_ids"`
	Points      int    `json:"points,omitempty"`
	Score       int    `json:"score"`
	MatchStreak int    `json:"match_streak"`
}

// TurnPayload accompanies turnChanged.
type TurnPayload struct {
	UserID    string `json:"user_id"`
	TurnIndex int    `json:"turn_index"`
}

// PowerUpPayload accompanies powerUpGranted and powerUpUsed.
type PowerUpPayload struct {
	UserID        string      `json:"user_id"`
	Kind          PowerUpKind `json:"kind"`
	UsesRemaining int         `json:"uses_remaining"`
	TileID        *int        `json:"tile_id,omitempty"`
	Automatic     bool        `json:"automatic,omitempty"`
	NoOp          bool        `json:"no_op,omitempty"`
}

// RevealPayload accompanies peek and tileRevealed. Tiles carry their true values.
type RevealPayload struct {
	UserID     string     `json:"user_id"`
	DurationMs int        `json:"duration_ms,omitempty"`
	Tiles      []TileView `json:"tiles"`
}

// SwapPayload accompanies tilesSwapped.
type SwapPayload struct {
	UserID  string `json:"user_id"`
	TileIDs [2]int `json:"tile_ids"`
}

// ShufflePayload accompanies boardShuffled with the public view of the board after the shuffle.
type ShufflePayload struct {
	UserID string     `json:"user_id"`
	Tiles  []TileView `json:"tiles"`
}

// TimerPayload accompanies timeRemaining, timerFrozen and timerResumed.
type TimerPayload struct {
	SecondsRemaining *int `json:"seconds_remaining"`
	DurationMs       int  `json:"duration_ms,omitempty"`
}

// TieBreakPayload accompanies tieBreakStarted.
type TieBreakPayload struct {
	Round            int        `json:"round"`
	Eligible         []string   `json:"eligible"`
	SecondsRemaining int        `json:"seconds_remaining"`
	Tiles            []TileView `json:"tiles"`
}

// EndedPayload accompanies ended.
type EndedPayload struct {
	Reason       EndReason      `json:"reason"`
	FinalScores  map[string]int `json:"final_scores"`
	WinnerUserID *string        `json:"winner_user_id"`
}

// RejectedPayload accompanies actionRejected.
type RejectedPayload struct {
	Action  string `json:"action"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
