package session

import (
	"context"
	"time"

	"github.com/wricardo/memory-match/game/anticheat"
	"github.com/wricardo/memory-match/game/engine"
)

// ActionType names an inbound gameplay action.
type ActionType string

const (
	ActionToggleReady ActionType = "toggleReady"
	ActionFlip        ActionType = "flip"
	ActionUsePowerUp  ActionType = "usePowerUp"
	ActionChat        ActionType = "chat"
)

// Action is one inbound gameplay message from a participant.
type Action struct {
	Type           ActionType         `json:"type"`
	TileID         int                `json:"tileId,omitempty"`
	Kind           engine.PowerUpKind `json:"kind,omitempty"`
	Targets        []int              `json:"targets,omitempty"`
	Text           string             `json:"text,omitempty"`
	Digest         string             `json:"digest,omitempty"`
	ClaimedMatches *int               `json:"claimedMatches,omitempty"`
}

// JoinRequest attaches a user to a room, creating the room if needed.
// Settings only apply when the room is created.
type JoinRequest struct {
	RoomID      string
	UserID      string
	DisplayName string
	Password    string
	Settings    *engine.RoomSettings
}

// Publisher delivers outbound events to attached connections.
type Publisher interface {
	Publish(events []engine.Event)
}

// Guard is the anti-cheat gate consulted before every action.
type Guard interface {
	Record(userID, actionType, digest string) ([]anticheat.Reason, error)
	Flag(userID string, reason anticheat.Reason, detail string) bool
	CompareDigest(userID, claimed, authoritative string) bool
	IsBlocked(userID string) bool
}

// ResultRecorder receives the results of finished sessions.
type ResultRecorder interface {
	Record(ctx context.Context, results []engine.GameResult) error
}

// ThemeSource resolves themes and room defaults.
type ThemeSource interface {
	Theme(name string) (engine.Theme, error)
	DefaultSettings() engine.RoomSettings
}

// Timing holds every delay the rooms use.
type Timing struct {
	RevealDelay   time.Duration // face-up pair shown before resolution
	TickInterval  time.Duration // one countdown second
	StartDelay    time.Duration // Starting to InProgress
	FreezeLength  time.Duration
	GracePeriod   time.Duration // reconnect window after a disconnect
	IdleTimeout   time.Duration
	Retention     time.Duration // finished snapshots on disk
	SweepInterval time.Duration
}

// DefaultTiming returns the production delays.
func DefaultTiming() Timing {
	return Timing{
		RevealDelay:   1500 * time.Millisecond,
		TickInterval:  time.Second,
		StartDelay:    3 * time.Second,
		FreezeLength:  engine.FreezeDurationMs * time.Millisecond,
		GracePeriod:   60 * time.Second,
		IdleTimeout:   10 * time.Minute,
		Retention:     24 * time.Hour,
		SweepInterval: time.Minute,
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish([]engine.Event) {}

type nopGuard struct{}

func (nopGuard) Record(string, string, string) ([]anticheat.Reason, error) { return nil, nil }
func (nopGuard) Flag(string, anticheat.Reason, string) bool                  { return false }
func (nopGuard) CompareDigest(_, claimed, authoritative string) bool         { return true }
func (nopGuard) IsBlocked(string) bool                                       { return false }
