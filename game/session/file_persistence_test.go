package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/memory-match/game/engine"
)

func testState(t *testing.T, roomID string) *engine.GameState {
	t.Helper()
	eng, err := engine.NewEngine(roomID, engine.DefaultSettings(), testTheme())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if _, err := eng.AddParticipant("alice", "Alice"); err != nil {
		t.Fatalf("Failed to add participant: %v", err)
	}
	return eng.Snapshot()
}

func TestFilePersistence(t *testing.T) {
	persistence, err := NewFilePersistence(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	state := testState(t, "test1")

	t.Run("Save and Load", func(t *testing.T) {
		if err := persistence.Save(state); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}
		if !persistence.Exists("test1") {
			t.Error("Snapshot file should exist after save")
		}

		loaded, err := persistence.Load("test1")
		if err != nil {
			t.Fatalf("Failed to load snapshot: %v", err)
		}
		if loaded.RoomID != "test1" || loaded.Status != engine.StatusWaiting {
			t.Errorf("Unexpected snapshot %s/%s", loaded.RoomID, loaded.Status)
		}
		if len(loaded.Participants) != 1 || loaded.Participants[0].DisplayName != "Alice" {
			t.Errorf("Participants not restored: %+v", loaded.Participants)
		}
		if loaded.Digest() != state.Digest() {
			t.Error("Round trip changed the public state")
		}
	})

	t.Run("Password is never written", func(t *testing.T) {
		withPassword := testState(t, "secret")
		withPassword.Settings.Password = "hunter2"
		if err := persistence.Save(withPassword); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(persistence.sessionsDir, "secret.json"))
		if err != nil {
			t.Fatalf("Failed to read snapshot: %v", err)
		}
		if strings.Contains(string(data), "hunter2") {
			t.Error("Snapshot leaks the room password")
		}
	})

	t.Run("List", func(t *testing.T) {
		ids, err := persistence.ListAll()
		if err != nil {
			t.Fatalf("Failed to list snapshots: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("Expected 2 snapshots, got %v", ids)
		}
	})

	t.Run("Missing and invalid IDs", func(t *testing.T) {
		if _, err := persistence.Load("nope"); !errors.Is(err, ErrRoomNotFound) {
			t.Errorf("Expected ErrRoomNotFound, got %v", err)
		}
		if _, err := persistence.Load("../etc/passwd"); !errors.Is(err, ErrRoomNotFound) {
			t.Errorf("Expected ErrRoomNotFound for a path, got %v", err)
		}
		if persistence.Exists("../x") {
			t.Error("Invalid IDs never exist")
		}
		bad := testState(t, "ok")
		bad.RoomID = "Bad ID"
		if err := persistence.Save(bad); !errors.Is(err, ErrInvalidRoomID) {
			t.Errorf("Expected ErrInvalidRoomID, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := persistence.Delete("test1"); err != nil {
			t.Fatalf("Failed to delete snapshot: %v", err)
		}
		if persistence.Exists("test1") {
			t.Error("Snapshot should not exist after delete")
		}
		if err := persistence.Delete("test1"); !errors.Is(err, ErrRoomNotFound) {
			t.Errorf("Expected ErrRoomNotFound, got %v", err)
		}
	})
}

func TestFilePersistence_PurgeFinished(t *testing.T) {
	dir := t.TempDir()
	persistence, err := NewFilePersistence(dir)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	old := testState(t, "old")
	old.Status = engine.StatusFinished
	old.EndedAt = now.Add(-48 * time.Hour)
	recent := testState(t, "recent")
	recent.Status = engine.StatusFinished
	recent.EndedAt = now.Add(-time.Hour)
	running := testState(t, "running")
	running.Status = engine.StatusInProgress

	for _, s := range []*engine.GameState{old, recent, running} {
		if err := persistence.Save(s); err != nil {
			t.Fatalf("Failed to save %s: %v", s.RoomID, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	purged, err := persistence.PurgeFinished(now.Add(-24 * time.Hour))
	if purged != 1 {
		t.Errorf("Expected 1 purged snapshot, got %d", purged)
	}
	if err == nil || !strings.Contains(err.Error(), "corrupt") {
		t.Errorf("Expected the corrupt file to be reported, got %v", err)
	}
	if persistence.Exists("old") {
		t.Error("Old finished snapshot should be purged")
	}
	if !persistence.Exists("recent") || !persistence.Exists("running") {
		t.Error("Recent and running snapshots must be kept")
	}
}

func TestFilePersistenceFileStructure(t *testing.T) {
	dir := t.TempDir()
	persistence, err := NewFilePersistence(dir)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	if err := persistence.Save(testState(t, "structure")); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "structure.json"))
	if err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}
	for _, field := range []string{`"id": "structure"`, `"version": 1`, `"saved_at"`, `"game_state"`, `"participants"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("Snapshot file should contain %s", field)
		}
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("Temporary file %s left behind", e.Name())
		}
	}
}
