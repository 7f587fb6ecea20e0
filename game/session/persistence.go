package session

import (
	"time"

	"github.com/wricardo/memory-match/game/engine"
)

// SessionPersistence defines the interface for persisting room snapshots
type SessionPersistence interface {
	// Save persists a snapshot, replacing any previous one for the room
	Save(state *engine.GameState) error

	// Load retrieves a snapshot by room ID
	Load(id string) (*engine.GameState, error)

	// Delete removes a snapshot
	Delete(id string) error

	// ListAll returns all persisted room IDs
	ListAll() ([]string, error)

	// Exists checks if a snapshot exists in storage
	Exists(id string) bool

	// PurgeFinished removes finished snapshots that ended before the cutoff
	PurgeFinished(before time.Time) (int, error)
}

// PersistedSession represents the JSON structure of a snapshot file
type PersistedSession struct {
	ID        string            `json:"id"`
	Version   int               `json:"version"`
	SavedAt   time.Time         `json:"saved_at"`
	GameState *engine.GameState `json:"game_state"`
}

const snapshotVersion = 1
