package engine

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func steppingClock() func() time.Time {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func testSettings(mode Mode) RoomSettings {
	return RoomSettings{
		BoardSize:       4,
		Theme:           "test",
		PowerUps:        false,
		Mode:            mode,
		MaxParticipants: 4,
	}
}

func newTestEngine(t *testing.T, settings RoomSettings, users ...string) *GameEngine {
	t.Helper()
	e, err := NewEngine("room-1", settings, testTheme(), WithRand(seeded(7, 11)), WithClock(steppingClock()))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	for _, u := range users {
		if _, err := e.AddParticipant(u, strings.ToUpper(u)); err != nil {
			t.Fatalf("AddParticipant(%s) failed: %v", u, err)
		}
	}
	return e
}

func startedEngine(t *testing.T, settings RoomSettings, users ...string) *GameEngine {
	t.Helper()
	e := newTestEngine(t, settings, users...)
	for _, u := range users {
		if _, err := e.ToggleReady(u); err != nil {
			t.Fatalf("ToggleReady(%s) failed: %v", u, err)
		}
	}
	if e.Status() != StatusStarting {
		t.Fatalf("Expected status starting, got %s", e.Status())
	}
	if _, err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return e
}

// findPair returns two unmatched face-down tiles with the same value.
func findPair(t *testing.T, e *GameEngine) (int, int) {
	t.Helper()
	tiles := e.state.Tiles
	for i := range tiles {
		if tiles[i].Matched || tiles[i].FaceUp {
			continue
		}
		for j := i + 1; j < len(tiles); j++ {
			if !tiles[j].Matched && !tiles[j].FaceUp && tiles[j].Value == tiles[i].Value {
				return i, j
			}
		}
	}
	t.Fatal("No pair left on the board")
	return -1, -1
}

// findMismatch returns two unmatched face-down tiles with different values.
func findMismatch(t *testing.T, e *GameEngine) (int, int) {
	t.Helper()
	tiles := e.state.Tiles
	for i := range tiles {
		if tiles[i].Matched || tiles[i].FaceUp {
			continue
		}
		for j := i + 1; j < len(tiles); j++ {
			if !tiles[j].Matched && !tiles[j].FaceUp && tiles[j].Value != tiles[i].Value {
				return i, j
			}
		}
	}
	t.Fatal("No mismatch left on the board")
	return -1, -1
}

func playPair(t *testing.T, e *GameEngine, user string, a, b int) []Event {
	t.Helper()
	var events []Event
	for _, id := range []int{a, b} {
		ev, err := e.Flip(user, id)
		if err != nil {
			t.Fatalf("Flip(%s, %d) failed: %v", user, id, err)
		}
		events = append(events, ev...)
	}
	if !e.PairPending() {
		t.Fatal("Expected a pending pair after two flips")
	}
	events = append(events, e.ResolvePair()...)
	if err := e.CheckInvariants(); err != nil {
		t.Fatalf("Invariant broken: %v", err)
	}
	return events
}

func findEvent(events []Event, kind EventKind) *Event {
	for i := range events {
		if events[i].Kind == kind {
			return &events[i]
		}
	}
	return nil
}

func currentUser(e *GameEngine) string {
	if p := e.current(); p != nil {
		return p.UserID
	}
	return ""
}

func TestNewEngine_ValidatesSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings RoomSettings
		theme    Theme
		want     error
	}{
		{"board size", RoomSettings{BoardSize: 5, Theme: "test", Mode: ModeStandard, MaxParticipants: 2}, testTheme(), ErrInvalidSettings},
		{"tie break mode", RoomSettings{BoardSize: 4, Theme: "test", Mode: ModeTieBreak, MaxParticipants: 2}, testTheme(), ErrInvalidSettings},
		{"unknown mode", RoomSettings{BoardSize: 4, Theme: "test", Mode: "blitz", MaxParticipants: 2}, testTheme(), ErrInvalidSettings},
		{"one participant", RoomSettings{BoardSize: 4, Theme: "test", Mode: ModeStandard, MaxParticipants: 1}, testTheme(), ErrInvalidSettings},
		{"nine participants", RoomSettings{BoardSize: 4, Theme: "test", Mode: ModeStandard, MaxParticipants: 9}, testTheme(), ErrInvalidSettings},
		{"time limit", RoomSettings{BoardSize: 4, Theme: "test", Mode: ModeSpeed, MaxParticipants: 2, TimeLimitSeconds: 5}, testTheme(), ErrInvalidSettings},
		{"small theme", RoomSettings{BoardSize: 8, Theme: "tiny", Mode: ModeStandard, MaxParticipants: 2}, Theme{Name: "tiny", Symbols: []string{"a", "b"}}, ErrInsufficientThemeSymbols},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine("r", tt.settings, tt.theme)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSettings_MergeAndCountdown(t *testing.T) {
	merged := RoomSettings{Mode: ModeSpeed}.Merge(DefaultSettings())
	if merged.BoardSize != 4 || merged.Theme != "classic" || merged.MaxParticipants != 4 {
		t.Errorf("Defaults not applied: %+v", merged)
	}
	if merged.Mode != ModeSpeed {
		t.Errorf("Requested mode overwritten: %s", merged.Mode)
	}

	if CountdownSeconds(testSettings(ModeStandard)) != nil {
		t.Error("Standard should have no countdown")
	}
	if s := CountdownSeconds(testSettings(ModeSpeed)); s == nil || *s != DefaultSpeedSeconds {
		t.Errorf("Speed should default to %d seconds", DefaultSpeedSeconds)
	}
	if s := CountdownSeconds(testSettings(ModePowerFrenzy)); s == nil || *s != DefaultFrenzySeconds {
		t.Errorf("PowerFrenzy should default to %d seconds", DefaultFrenzySeconds)
	}
	custom := testSettings(ModeSpeed)
	custom.TimeLimitSeconds = 45
	if s := CountdownSeconds(custom); s == nil || *s != 45 {
		t.Error("Configured time limit should win over the default")
	}
}

func TestAddParticipant(t *testing.T) {
	settings := testSettings(ModeStandard)
	settings.MaxParticipants = 2
	e := newTestEngine(t, settings)

	events, err := e.AddParticipant("alice", "Alice")
	if err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	if ev := findEvent(events, EventParticipantJoined); ev == nil || len(ev.Recipients) != 0 {
		t.Error("Expected a broadcast participantJoined event")
	}
	if ev := findEvent(events, EventJoined); ev == nil || len(ev.Recipients) != 1 || ev.Recipients[0] != "alice" {
		t.Error("Expected a joined event addressed to the joiner")
	}

	if _, err := e.AddParticipant("alice", "Alice"); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("Expected ErrAlreadyJoined, got %v", err)
	}
	if _, err := e.AddParticipant("bob", ""); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	if _, err := e.AddParticipant("carol", "Carol"); !errors.Is(err, ErrRoomFull) {
		t.Errorf("Expected ErrRoomFull, got %v", err)
	}
	if e.state.Participants[1].DisplayName != "bob" {
		t.Errorf("Blank display name should fall back to the user ID")
	}
}

func TestToggleReady_StartsOnlyWithEnoughParticipants(t *testing.T) {
	e := newTestEngine(t, testSettings(ModeStandard), "alice")
	if _, err := e.ToggleReady("alice"); err != nil {
		t.Fatalf("ToggleReady failed: %v", err)
	}
	if e.Status() != StatusWaiting {
		t.Fatalf("A lone ready participant must not start the game")
	}

	if _, err := e.AddParticipant("bob", "Bob"); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	events, err := e.ToggleReady("bob")
	if err != nil {
		t.Fatalf("ToggleReady failed: %v", err)
	}
	if e.Status() != StatusStarting {
		t.Fatalf("Expected starting, got %s", e.Status())
	}
	ev := findEvent(events, EventReadyChanged)
	if ev == nil || ev.Payload.(ReadyPayload).Status != StatusStarting {
		t.Error("readyChanged should carry the new status")
	}

	if _, err := e.ToggleReady("bob"); !errors.Is(err, ErrNotWaiting) {
		t.Errorf("Expected ErrNotWaiting, got %v", err)
	}
	if _, err := e.ToggleReady("mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
}

func TestStart(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")

	s := e.state
	if s.Status != StatusInProgress {
		t.Fatalf("Expected in progress, got %s", s.Status)
	}
	if len(s.Tiles) != 16 {
		t.Errorf("Expected 16 tiles, got %d", len(s.Tiles))
	}
	if s.TurnIndex != 0 || !s.Participants[0].IsCurrentTurn || s.Participants[1].IsCurrentTurn {
		t.Error("First participant should hold the first turn")
	}
	if s.SecondsRemaining != nil {
		t.Error("Standard mode should not run a countdown")
	}
	if _, err := e.AddParticipant("carol", "Carol"); !errors.Is(err, ErrGameAlreadyStarted) {
		t.Errorf("Expected ErrGameAlreadyStarted, got %v", err)
	}
	if _, err := e.Start(); !errors.Is(err, ErrGameAlreadyStarted) {
		t.Errorf("Second start should fail, got %v", err)
	}
}

func TestStart_NoContestWithoutEnoughParticipants(t *testing.T) {
	e := newTestEngine(t, testSettings(ModeStandard), "alice", "bob")
	e.ToggleReady("alice")
	e.ToggleReady("bob")
	if _, err := e.RemoveParticipant("bob"); err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}

	events, err := e.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if e.state.Status != StatusFinished || e.state.EndReason != EndNoContest {
		t.Fatalf("Expected no contest, got %s/%s", e.state.Status, e.state.EndReason)
	}
	if ev := findEvent(events, EventEnded); ev == nil || ev.Payload.(EndedPayload).WinnerUserID != nil {
		t.Error("Expected an ended event without a winner")
	}
}

func TestStart_FaultOnBoardFailure(t *testing.T) {
	e := newTestEngine(t, testSettings(ModeStandard), "alice", "bob")
	e.ToggleReady("alice")
	e.ToggleReady("bob")
	e.theme.Symbols = nil

	events, err := e.Start()
	if !errors.Is(err, ErrInsufficientThemeSymbols) {
		t.Fatalf("Expected the generation error, got %v", err)
	}
	if e.state.EndReason != EndError || e.state.Status != StatusFinished {
		t.Errorf("Expected an Error end, got %s/%s", e.state.Status, e.state.EndReason)
	}
	if findEvent(events, EventEnded) == nil {
		t.Error("Participants should be notified of the fault")
	}
}

func TestFlip_Preconditions(t *testing.T) {
	t.Run("not started", func(t *testing.T) {
		e := newTestEngine(t, testSettings(ModeStandard), "alice", "bob")
		if _, err := e.Flip("alice", 0); !errors.Is(err, ErrNotYourTurn) {
			t.Errorf("Expected ErrNotYourTurn before the start, got %v", err)
		}
	})

	t.Run("not a participant", func(t *testing.T) {
		e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
		if _, err := e.Flip("mallory", 0); !errors.Is(err, ErrNotParticipant) {
			t.Errorf("Expected ErrNotParticipant, got %v", err)
		}
	})

	t.Run("turn is checked before status", func(t *testing.T) {
		e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
		e.SetConnected("alice", false)
		if _, err := e.Flip("bob", 0); !errors.Is(err, ErrNotYourTurn) {
			t.Errorf("Expected ErrNotYourTurn while paused, got %v", err)
		}
	})

	t.Run("not your turn", func(t *testing.T) {
		e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
		_, err := e.Flip("bob", 0)
		if !errors.Is(err, ErrNotYourTurn) || !IsStructural(err) {
			t.Errorf("Expected structural ErrNotYourTurn, got %v", err)
		}
	})

	t.Run("unknown tile", func(t *testing.T) {
		e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
		for _, id := range []int{-1, 16, 99} {
			if _, err := e.Flip("alice", id); !errors.Is(err, ErrUnknownTile) {
				t.Errorf("Tile %d: expected ErrUnknownTile, got %v", id, err)
			}
		}
	})

	t.Run("double flip", func(t *testing.T) {
		e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
		if _, err := e.Flip("alice", 3); err != nil {
			t.Fatalf("Flip failed: %v", err)
		}
		if _, err := e.Flip("alice", 3); !errors.Is(err, ErrTileAlreadyFaceUp) {
			t.Errorf("Expected ErrTileAlreadyFaceUp, got %v", err)
		}
		if e.state.Participants[0].FlipsMade != 1 || len(e.state.FaceUpTileIDs) != 1 {
			t.Error("Rejected flip must not mutate state")
		}
	})

	t.Run("matched tile", func(t *testing.T) {
		e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
		a, b := findPair(t, e)
		playPair(t, e, "alice", a, b)
		if _, err := e.Flip("alice", a); !errors.Is(err, ErrTileAlreadyMatched) {
			t.Errorf("Expected ErrTileAlreadyMatched, got %v", err)
		}
	})

	t.Run("pair resolving", func(t *testing.T) {
		e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
		a, b := findMismatch(t, e)
		e.Flip("alice", a)
		e.Flip("alice", b)
		third := 0
		for third == a || third == b {
			third++
		}
		_, err := e.Flip("alice", third)
		if !errors.Is(err, ErrPairResolving) || !errors.Is(err, ErrGameNotInProgress) {
			t.Errorf("Expected pair resolving busy state, got %v", err)
		}
		if ReasonCode(err) != "pair_resolving" {
			t.Errorf("Unexpected reason code %q", ReasonCode(err))
		}
	})

	t.Run("paused", func(t *testing.T) {
		e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
		e.SetConnected("bob", false)
		if _, err := e.Flip("alice", 0); !errors.Is(err, ErrGameNotInProgress) {
			t.Errorf("Expected ErrGameNotInProgress while paused, got %v", err)
		}
	})
}

func TestFlip_GrantsPowerUp(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
	p := NewPowerUp(Peek)
	e.state.Tiles[5].PowerUp = &p

	events, err := e.Flip("alice", 5)
	if err != nil {
		t.Fatalf("Flip failed: %v", err)
	}
	if findEvent(events, EventPowerUpGranted) == nil {
		t.Error("Expected powerUpGranted")
	}
	if e.state.Tiles[5].PowerUp != nil {
		t.Error("Collected power-up should leave the tile")
	}
	inv := e.state.Participants[0].PowerUps
	if len(inv) != 1 || inv[0].Kind != Peek {
		t.Errorf("Unexpected inventory %+v", inv)
	}
}

func TestMatchPoints(t *testing.T) {
	tests := []struct {
		mode   Mode
		streak int
		want   int
	}{
		{ModeStandard, 1, 100},
		{ModeStandard, 2, 125},
		{ModeStandard, 4, 175},
		{ModeSpeed, 1, 150},
		{ModeSpeed, 2, 187},
		{ModeTieBreak, 1, 120},
		{ModeTieBreak, 3, 180},
		{ModePowerFrenzy, 1, 80},
		{ModePowerFrenzy, 2, 100},
	}
	for _, tt := range tests {
		if got := MatchPoints(tt.mode, tt.streak); got != tt.want {
			t.Errorf("MatchPoints(%s, %d) = %d, want %d", tt.mode, tt.streak, got, tt.want)
		}
	}
}

func TestResolvePair_TurnRulesByMode(t *testing.T) {
	tests := []struct {
		mode      Mode
		points    int
		keepsTurn bool
	}{
		{ModeStandard, 100, true},
		{ModeSpeed, 150, false},
		{ModePowerFrenzy, 80, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			e := startedEngine(t, testSettings(tt.mode), "alice", "bob")
			a, b := findPair(t, e)
			events := playPair(t, e, "alice", a, b)

			ev := findEvent(events, EventPairMatched)
			if ev == nil {
				t.Fatal("Expected pairMatched")
			}
			if got := ev.Payload.(PairPayload).Points; got != tt.points {
				t.Errorf("Expected %d points, got %d", tt.points, got)
			}
			if (currentUser(e) == "alice") != tt.keepsTurn {
				t.Errorf("Turn after match held by %s", currentUser(e))
			}
			if !e.state.Tiles[a].Matched || !e.state.Tiles[b].Matched {
				t.Error("Both tiles should be matched")
			}
		})
	}
}

func TestResolvePair_TieBreakMatchScoresWithTieBreakMultiplier(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
	e.startTieBreak([]string{"alice", "bob"})
	e.drain()

	user := currentUser(e)
	playPair(t, e, user, 0, 1)
	_, p := e.participant(user)
	if p.Score != 120 {
		t.Errorf("Expected 120 points in a tie-break, got %d", p.Score)
	}
}

func TestResolvePair_StreakAndMismatch(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
	alice := e.state.Participants[0]

	a, b := findPair(t, e)
	playPair(t, e, "alice", a, b)
	a, b = findPair(t, e)
	playPair(t, e, "alice", a, b)
	if alice.Score != 225 || alice.MatchStreak != 2 || alice.MatchStreakMax != 2 {
		t.Fatalf("Unexpected score %d streak %d", alice.Score, alice.MatchStreak)
	}

	a, b = findMismatch(t, e)
	events := playPair(t, e, "alice", a, b)
	if findEvent(events, EventPairMismatched) == nil {
		t.Error("Expected pairMismatched")
	}
	if alice.MatchStreak != 0 || alice.MatchStreakMax != 2 {
		t.Errorf("Mismatch should reset the streak only, got %d/%d", alice.MatchStreak, alice.MatchStreakMax)
	}
	if e.state.Tiles[a].FaceUp || e.state.Tiles[b].FaceUp {
		t.Error("Mismatched tiles should flip back")
	}
	if currentUser(e) != "bob" {
		t.Errorf("Turn should pass to bob, got %s", currentUser(e))
	}
	if ev := findEvent(events, EventTurnChanged); ev == nil || ev.Payload.(TurnPayload).UserID != "bob" {
		t.Error("Expected turnChanged to bob")
	}
	if alice.FlipsMade != 6 {
		t.Errorf("Expected 6 flips, got %d", alice.FlipsMade)
	}
}

func TestResolvePair_ExtraTurnConsumedOnMismatch(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
	alice := e.state.Participants[0]
	alice.addPowerUp(NewPowerUp(ExtraTurn))

	a, b := findMismatch(t, e)
	events := playPair(t, e, "alice", a, b)

	if currentUser(e) != "alice" {
		t.Errorf("ExtraTurn should keep the turn, got %s", currentUser(e))
	}
	if len(alice.PowerUps) != 0 || alice.PowerUpsUsed != 1 {
		t.Errorf("ExtraTurn should be consumed, inventory %+v used %d", alice.PowerUps, alice.PowerUpsUsed)
	}
	ev := findEvent(events, EventPowerUpUsed)
	if ev == nil || !ev.Payload.(PowerUpPayload).Automatic {
		t.Error("Expected an automatic powerUpUsed event")
	}
}

func TestRemoveParticipant_SurvivorWinsByAbandonment(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
	a, b := findPair(t, e)
	playPair(t, e, "alice", a, b)

	events, err := e.RemoveParticipant("alice")
	if err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	s := e.state
	if s.Status != StatusFinished || s.EndReason != EndAbandoned {
		t.Fatalf("Expected abandoned, got %s/%s", s.Status, s.EndReason)
	}
	if s.WinnerUserID == nil || *s.WinnerUserID != "bob" {
		t.Errorf("Survivor should win")
	}
	ended := findEvent(events, EventEnded)
	if ended == nil || ended.Payload.(EndedPayload).FinalScores["alice"] != 100 {
		t.Error("Final scores should include the departed participant")
	}

	results := e.Results()
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Won != (r.UserID == "bob") {
			t.Errorf("Unexpected result for %s: won=%v", r.UserID, r.Won)
		}
		if r.EndReason != EndAbandoned {
			t.Errorf("Unexpected end reason %s", r.EndReason)
		}
	}
}

func TestRemoveParticipant_RepairsTurn(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob", "carol")

	// Pending pair of the leaver flips back.
	a, b := findMismatch(t, e)
	e.Flip("alice", a)
	e.Flip("alice", b)
	if _, err := e.RemoveParticipant("alice"); err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	if e.PairPending() || e.state.Tiles[a].FaceUp || e.state.Tiles[b].FaceUp {
		t.Error("Pending pair of the leaver should flip back")
	}
	if currentUser(e) != "bob" || e.state.TurnIndex != 0 {
		t.Errorf("Turn should pass to bob at index 0, got %s at %d", currentUser(e), e.state.TurnIndex)
	}

	a, b = findMismatch(t, e)
	playPair(t, e, "bob", a, b)
	if currentUser(e) != "carol" {
		t.Fatalf("Expected carol's turn, got %s", currentUser(e))
	}
	if err := e.CheckInvariants(); err != nil {
		t.Fatalf("Invariant broken: %v", err)
	}
	if _, err := e.AddParticipant("dave", "Dave"); !errors.Is(err, ErrGameAlreadyStarted) {
		t.Errorf("Expected ErrGameAlreadyStarted, got %v", err)
	}
	if _, err := e.RemoveParticipant("mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
}

func TestRemoveParticipant_ShiftsTurnIndex(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob", "carol")
	a, b := findMismatch(t, e)
	playPair(t, e, "alice", a, b)
	if currentUser(e) != "bob" {
		t.Fatalf("Expected bob's turn, got %s", currentUser(e))
	}

	if _, err := e.RemoveParticipant("alice"); err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	if currentUser(e) != "bob" || e.state.TurnIndex != 0 {
		t.Errorf("Bob should keep the turn at index 0, got %s at %d", currentUser(e), e.state.TurnIndex)
	}
	if err := e.CheckInvariants(); err != nil {
		t.Errorf("Invariant broken: %v", err)
	}
}

func TestSetConnected_PausesAndResumes(t *testing.T) {
	e := startedEngine(t, testSettings(ModeSpeed), "alice", "bob")

	events, err := e.SetConnected("bob", false)
	if err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}
	if e.Status() != StatusPaused || findEvent(events, EventPaused) == nil {
		t.Fatalf("Disconnect should pause the session")
	}

	before := *e.state.SecondsRemaining
	if ev := e.Tick(); ev != nil {
		t.Error("Tick while paused should do nothing")
	}
	if *e.state.SecondsRemaining != before {
		t.Error("Paused session must keep its remaining time")
	}

	events, err = e.SetConnected("bob", true)
	if err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}
	if e.Status() != StatusInProgress || findEvent(events, EventResumed) == nil {
		t.Fatalf("Reconnect should resume the session")
	}
	joined := findEvent(events, EventJoined)
	if joined == nil || joined.Recipients[0] != "bob" {
		t.Error("Reconnecting participant should receive a snapshot")
	}
}

func TestChat(t *testing.T) {
	e := newTestEngine(t, testSettings(ModeStandard), "alice", "bob")

	if _, err := e.Chat("alice", "   "); !errors.Is(err, ErrChatEmpty) {
		t.Errorf("Expected ErrChatEmpty, got %v", err)
	}
	if _, err := e.Chat("alice", strings.Repeat("x", MaxChatLength+1)); !errors.Is(err, ErrChatTooLong) {
		t.Errorf("Expected ErrChatTooLong, got %v", err)
	}
	if _, err := e.Chat("alice", strings.Repeat("é", MaxChatLength)); err != nil {
		t.Errorf("Length should count characters, got %v", err)
	}
	if _, err := e.Chat("mallory", "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}

	for i := 0; i < MaxChatHistory+20; i++ {
		if _, err := e.Chat("bob", "hello"); err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
	}
	if len(e.state.Chat) != MaxChatHistory {
		t.Errorf("Chat history should be bounded to %d, got %d", MaxChatHistory, len(e.state.Chat))
	}
}

func TestView_MasksHiddenTiles(t *testing.T) {
	settings := testSettings(ModeStandard)
	settings.Password = "secret"
	e := startedEngine(t, settings, "alice", "bob")
	p := NewPowerUp(Swap)
	e.state.Tiles[2].PowerUp = &p

	v := e.View()
	if v.Settings.Password != "" || !v.HasPassword {
		t.Error("Password must never appear in views")
	}
	for _, tile := range v.Tiles {
		if tile.Value != "" || tile.Theme != "" || tile.PowerUp != nil {
			t.Fatalf("Hidden tile %d leaked: %+v", tile.ID, tile)
		}
	}

	e.Flip("alice", 4)
	v = e.View()
	if v.Tiles[4].Value != e.state.Tiles[4].Value {
		t.Error("Face-up tile should be visible")
	}
	if v.CurrentTurnUserID != "alice" {
		t.Errorf("Unexpected current turn %q", v.CurrentTurnUserID)
	}

	v.Participants[0].Score = 999
	if e.state.Participants[0].Score == 999 {
		t.Error("View must not share memory with the state")
	}
}

func TestDigest(t *testing.T) {
	e := startedEngine(t, testSettings(ModeSpeed), "alice", "bob")
	d0 := e.Digest()

	e.Tick()
	if e.Digest() != d0 {
		t.Error("Countdown must not change the digest")
	}

	e.state.Tiles[0].Value, e.state.Tiles[1].Value = e.state.Tiles[1].Value, e.state.Tiles[0].Value
	if e.Digest() != d0 && e.state.Tiles[0].Value != e.state.Tiles[1].Value {
		t.Error("Hidden values must not change the digest")
	}

	e.Flip("alice", 0)
	if e.Digest() == d0 {
		t.Error("A flip should change the digest")
	}
	if e.Digest() != e.Snapshot().Digest() {
		t.Error("Snapshot digest should match")
	}
}

func TestCheckInvariants_DetectsTampering(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")
	if err := e.CheckInvariants(); err != nil {
		t.Fatalf("Fresh game broke invariants: %v", err)
	}

	e.state.Participants[1].IsCurrentTurn = true
	if err := e.CheckInvariants(); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Two turn holders should be detected, got %v", err)
	}
	e.state.Participants[1].IsCurrentTurn = false

	e.state.Tiles[0].Value = "intruder"
	if err := e.CheckInvariants(); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Unpaired value should be detected, got %v", err)
	}
}

func TestReasonCode(t *testing.T) {
	tests := []struct {
		err        error
		code       string
		structural bool
	}{
		{ErrNotYourTurn, "not_your_turn", true},
		{ErrPairResolving, "pair_resolving", false},
		{ErrGameNotInProgress, "game_not_in_progress", false},
		{ErrTileAlreadyMatched, "tile_already_matched", true},
		{ErrPowerUpNotHeld, "power_up_not_held", true},
		{ErrChatTooLong, "chat_too_long", false},
		{errors.New("boom"), "error", false},
	}
	for _, tt := range tests {
		wrapped := errors.Join(errors.New("context"), tt.err)
		if got := ReasonCode(wrapped); got != tt.code {
			t.Errorf("ReasonCode(%v) = %q, want %q", tt.err, got, tt.code)
		}
		if got := IsStructural(tt.err); got != tt.structural {
			t.Errorf("IsStructural(%v) = %v, want %v", tt.err, got, tt.structural)
		}
	}
}

func TestEndToEnd_StandardGame(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")

	// alice misses, bob finds three pairs and misses, alice clears the board.
	a, b := findMismatch(t, e)
	playPair(t, e, "alice", a, b)
	for i := 0; i < 3; i++ {
		a, b = findPair(t, e)
		playPair(t, e, "bob", a, b)
	}
	a, b = findMismatch(t, e)
	playPair(t, e, "bob", a, b)

	var last []Event
	for i := 0; i < 5; i++ {
		if currentUser(e) != "alice" {
			t.Fatalf("Expected alice's turn, got %s", currentUser(e))
		}
		a, b = findPair(t, e)
		last = playPair(t, e, "alice", a, b)
	}

	s := e.state
	if s.Status != StatusFinished || s.EndReason != EndCompleted {
		t.Fatalf("Expected completed game, got %s/%s", s.Status, s.EndReason)
	}
	if s.WinnerUserID == nil || *s.WinnerUserID != "alice" {
		t.Fatalf("alice should win")
	}
	if s.Participants[0].Score != 750 || s.Participants[1].Score != 375 {
		t.Errorf("Unexpected scores %d/%d", s.Participants[0].Score, s.Participants[1].Score)
	}

	ended := findEvent(last, EventEnded)
	if ended == nil {
		t.Fatal("Expected ended event")
	}
	payload := ended.Payload.(EndedPayload)
	if payload.Reason != EndCompleted || *payload.WinnerUserID != "alice" || payload.FinalScores["bob"] != 375 {
		t.Errorf("Unexpected ended payload %+v", payload)
	}

	results := e.Results()
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		switch r.UserID {
		case "alice":
			if !r.Won || r.MatchesFound != 5 || r.MatchStreakMax != 5 {
				t.Errorf("Unexpected result for alice: %+v", r)
			}
		case "bob":
			if r.Won || r.MatchesFound != 3 || r.FlipsMade != 8 {
				t.Errorf("Unexpected result for bob: %+v", r)
			}
		}
		if r.Mode != ModeStandard || r.BoardSize != 4 || r.DurationMs <= 0 {
			t.Errorf("Unexpected metadata: %+v", r)
		}
	}

	if _, err := e.Flip("alice", 0); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("Flip after the end should fail, got %v", err)
	}
}

func TestEndToEnd_PerfectGame(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")

	var last []Event
	for i := 0; i < 8; i++ {
		if currentUser(e) != "alice" {
			t.Fatalf("Pair %d: expected alice to keep the turn, got %s", i+1, currentUser(e))
		}
		a, b := findPair(t, e)
		last = playPair(t, e, "alice", a, b)
	}

	s := e.state
	if s.Status != StatusFinished || s.EndReason != EndCompleted {
		t.Fatalf("Expected completed game, got %s/%s", s.Status, s.EndReason)
	}
	if s.WinnerUserID == nil || *s.WinnerUserID != "alice" {
		t.Fatal("alice should win")
	}
	// 100 + 125 + ... + 275
	alice := s.Participants[0]
	if alice.Score != 1500 || alice.MatchesFound != 8 || alice.MatchStreakMax != 8 || alice.FlipsMade != 16 {
		t.Errorf("Unexpected stats for alice: %+v", alice)
	}
	if s.Participants[1].Score != 0 || s.Participants[1].FlipsMade != 0 {
		t.Errorf("bob never played: %+v", s.Participants[1])
	}
	if findEvent(last, EventTieBreakStarted) != nil || findEvent(last, EventEnded) == nil {
		t.Error("The last match should end the game")
	}
}

func TestResolvePair_TieOnCompletionIsNoContest(t *testing.T) {
	e := startedEngine(t, testSettings(ModeStandard), "alice", "bob")

	for i := 0; i < 4; i++ {
		a, b := findPair(t, e)
		playPair(t, e, "alice", a, b)
	}
	a, b := findMismatch(t, e)
	playPair(t, e, "alice", a, b)

	var last []Event
	for i := 0; i < 4; i++ {
		if currentUser(e) != "bob" {
			t.Fatalf("Expected bob's turn, got %s", currentUser(e))
		}
		a, b = findPair(t, e)
		last = playPair(t, e, "bob", a, b)
	}

	s := e.state
	if s.Participants[0].Score != 550 || s.Participants[1].Score != 550 {
		t.Fatalf("Expected a 550-550 tie, got %d/%d", s.Participants[0].Score, s.Participants[1].Score)
	}
	if s.Status != StatusFinished || s.EndReason != EndNoContest {
		t.Fatalf("Expected a NoContest finish, got %s/%s (mode %s)", s.Status, s.EndReason, s.Mode)
	}
	if s.WinnerUserID != nil {
		t.Errorf("A tied board has no winner, got %s", *s.WinnerUserID)
	}
	if s.Mode != ModeStandard || s.Round != 1 || s.TieBreakRounds != 0 {
		t.Errorf("A cleared board must not start a tie-break: mode %s round %d", s.Mode, s.Round)
	}

	ended := findEvent(last, EventEnded)
	if ended == nil {
		t.Fatal("Expected ended event")
	}
	if p := ended.Payload.(EndedPayload); p.Reason != EndNoContest || p.WinnerUserID != nil {
		t.Errorf("Unexpected ended payload %+v", p)
	}
	for _, r := range e.Results() {
		if r.Won {
			t.Errorf("Nobody wins a tie: %+v", r)
		}
	}
}
