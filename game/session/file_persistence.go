package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/wricardo/memory-match/game/engine"
)

// FilePersistence implements SessionPersistence using file system storage
type FilePersistence struct {
	sessionsDir string
	now         func() time.Time
}

// NewFilePersistence creates a new file-based snapshot store
func NewFilePersistence(sessionsDir string) (*FilePersistence, error) {
	// Create sessions directory if it doesn't exist
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &FilePersistence{
		sessionsDir: sessionsDir,
		now:         time.Now,
	}, nil
}

// Save persists a snapshot to a JSON file. The file is written next to its
// destination and renamed into place so readers never see a partial file.
func (fp *FilePersistence) Save(state *engine.GameState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	if !validRoomID(state.RoomID) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomID, state.RoomID)
	}

	data := PersistedSession{
		ID:        state.RoomID,
		Version:   snapshotVersion,
		SavedAt:   fp.now(),
		GameState: state,
	}

	// Marshal to JSON with indentation for readability
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	filePath := fp.getFilePath(state.RoomID)
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return multierr.Append(fmt.Errorf("failed to move snapshot file: %w", err), os.Remove(tmp))
	}
	return nil
}

// Load retrieves a snapshot from a JSON file
func (fp *FilePersistence) Load(id string) (*engine.GameState, error) {
	if !validRoomID(id) {
		return nil, ErrRoomNotFound
	}
	filePath := fp.getFilePath(id)

	jsonData, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var data PersistedSession
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if data.GameState == nil {
		return nil, fmt.Errorf("snapshot %s has no game state", id)
	}
	return data.GameState, nil
}

// Delete removes a snapshot file
func (fp *FilePersistence) Delete(id string) error {
	if !fp.Exists(id) {
		return ErrRoomNotFound
	}
	if err := os.Remove(fp.getFilePath(id)); err != nil {
		return fmt.Errorf("failed to remove snapshot file: %w", err)
	}
	return nil
}

// ListAll returns all persisted room IDs
func (fp *FilePersistence) ListAll() ([]string, error) {
	entries, err := os.ReadDir(fp.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}

// Exists checks if a snapshot file exists
func (fp *FilePersistence) Exists(id string) bool {
	if !validRoomID(id) {
		return false
	}
	_, err := os.Stat(fp.getFilePath(id))
	return err == nil
}

// PurgeFinished deletes finished snapshots whose game ended before the
// cutoff. Unreadable files are reported but do not stop the purge.
func (fp *FilePersistence) PurgeFinished(before time.Time) (int, error) {
	ids, err := fp.ListAll()
	if err != nil {
		return 0, err
	}

	var errs error
	purged := 0
	for _, id := range ids {
		state, err := fp.Load(id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("load %s: %w", id, err))
			continue
		}
		if state.Status != engine.StatusFinished || !state.EndedAt.Before(before) {
			continue
		}
		if err := fp.Delete(id); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		purged++
	}
	return purged, errs
}

// getFilePath returns the full file path for a room ID
func (fp *FilePersistence) getFilePath(id string) string {
	return filepath.Join(fp.sessionsDir, fmt.Sprintf("%s.json", id))
}
