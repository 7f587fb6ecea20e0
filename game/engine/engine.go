package engine

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"
)

// Engine provides the main interface for session operations. Every mutating
// call returns the events it produced; nothing is published from inside the engine.
type Engine interface {
	// Membership
	AddParticipant(userID, displayName string) ([]Event, error)
	RemoveParticipant(userID string) ([]Event, error)
	SetConnected(userID string, connected bool) ([]Event, error)
	HasParticipant(userID string) bool
	ParticipantCount() int

	// Lifecycle
	ToggleReady(userID string) ([]Event, error)
	Start() ([]Event, error)
	Fault(err error) []Event
	Status() Status

	// Play
	Flip(userID string, tileID int) ([]Event, error)
	PairPending() bool
	ResolvePair() []Event
	UsePowerUp(userID string, kind PowerUpKind, targets []int) ([]Event, error)
	Chat(userID, text string) ([]Event, error)

	// Timers
	Tick() []Event
	Unfreeze() []Event
	Ticking() bool

	// Read models
	View() View
	Snapshot() *GameState
	Digest() string
	Results() []GameResult
	CheckInvariants() error
}

// Option configures a GameEngine.
type Option func(*GameEngine)

// WithRand sets the random source used for boards and shuffles.
func WithRand(r *rand.Rand) Option {
	return func(e *GameEngine) { e.rng = r }
}

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *GameEngine) { e.now = now }
}

// GameEngine implements the Engine interface. It is not safe for concurrent use;
// the owning room goroutine serializes all calls.
type GameEngine struct {
	state  *GameState
	theme  Theme
	rng    *rand.Rand
	now    func() time.Time
	events []Event
}

// NewEngine creates a waiting session for roomID.
func NewEngine(roomID string, settings RoomSettings, theme Theme, opts ...Option) (*GameEngine, error) {
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	pairs := settings.BoardSize * settings.BoardSize / 2
	if n := len(uniqueSymbols(theme.Symbols)); n < pairs {
		return nil, fmt.Errorf("%w: theme %q has %d symbols, need %d",
			ErrInsufficientThemeSymbols, theme.Name, n, pairs)
	}

	e := &GameEngine{
		theme: theme,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = NewRand()
	}

	now := e.now()
	e.state = &GameState{
		RoomID:        roomID,
		Settings:      settings,
		Participants:  []*Participant{},
		Tiles:         []Tile{},
		FaceUpTileIDs: []int{},
		Status:        StatusWaiting,
		Mode:          settings.Mode,
		BaseMode:      settings.Mode,
		Round:         1,
		Chat:          []ChatMessage{},
		CreatedAt:     now,
		LastActivity:  now,
	}
	return e, nil
}

// Restore wraps a previously persisted state.
func Restore(state *GameState, theme Theme, opts ...Option) (*GameEngine, error) {
	if state == nil {
		return nil, fmt.Errorf("state cannot be nil")
	}
	e := &GameEngine{state: state, theme: theme, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = NewRand()
	}
	return e, nil
}

// Status returns the current lifecycle state.
func (e *GameEngine) Status() Status {
	return e.state.Status
}

// ParticipantCount returns the number of attached participants.
func (e *GameEngine) ParticipantCount() int {
	return len(e.state.Participants)
}

// HasParticipant reports whether userID is attached to the session.
func (e *GameEngine) HasParticipant(userID string) bool {
	_, p := e.participant(userID)
	return p != nil
}

// Connected reports whether userID is attached and connected.
func (e *GameEngine) Connected(userID string) bool {
	_, p := e.participant(userID)
	return p != nil && p.Connected
}

// View returns the masked projection of the current state.
func (e *GameEngine) View() View {
	return e.state.View()
}

// Snapshot returns a deep copy of the authoritative state.
func (e *GameEngine) Snapshot() *GameState {
	return e.state.Clone()
}

// Digest returns the digest of the current public state.
func (e *GameEngine) Digest() string {
	return e.state.Digest()
}

// Settings returns the room settings.
func (e *GameEngine) Settings() RoomSettings {
	return e.state.Settings
}

// PairsOnBoard returns the number of pairs on the current board.
func (e *GameEngine) PairsOnBoard() int {
	return len(e.state.Tiles) / 2
}

// AddParticipant attaches a new participant. Only waiting sessions accept new participants.
func (e *GameEngine) AddParticipant(userID, displayName string) ([]Event, error) {
	s := e.state
	if _, p := e.participant(userID); p != nil {
		return nil, ErrAlreadyJoined
	}
	if s.Status != StatusWaiting {
		return nil, ErrGameAlreadyStarted
	}
	if len(s.Participants) >= s.Settings.MaxParticipants {
		return nil, ErrRoomFull
	}
	if displayName == "" {
		displayName = userID
	}

	now := e.now()
	p := &Participant{
		UserID:      userID,
		DisplayName: displayName,
		PowerUps:    []PowerUp{},
		Connected:   true,
		JoinedAt:    now,
	}
	s.Participants = append(s.Participants, p)
	s.LastActivity = now

	e.emit(EventParticipantJoined, ParticipantPayload{UserID: userID, DisplayName: displayName})
	e.emitTo([]string{userID}, EventJoined, s.View())
	return e.drain(), nil
}

// RemoveParticipant detaches a participant. During a running game the
// participant is kept in Departed for results, the turn is repaired and a
// single survivor wins by abandonment.
func (e *GameEngine) RemoveParticipant(userID string) ([]Event, error) {
	s := e.state
	idx, p := e.participant(userID)
	if p == nil {
		return nil, ErrNotParticipant
	}

	running := s.Status == StatusInProgress || s.Status == StatusPaused
	wasTurn := p.IsCurrentTurn

	if running && s.ResolvingUserID == userID {
		e.flipBack()
	}
	if running {
		gone := p.clone()
		gone.IsCurrentTurn = false
		gone.Connected = false
		s.Departed = append(s.Departed, gone)
	}

	s.Participants = append(s.Participants[:idx], s.Participants[idx+1:]...)
	s.Eligible = removeString(s.Eligible, userID)
	s.LastActivity = e.now()
	e.emit(EventParticipantLeft, ParticipantPayload{UserID: userID, DisplayName: p.DisplayName})

	if !running {
		return e.drain(), nil
	}

	n := len(s.Participants)
	switch {
	case n == 0:
		e.finish(EndAbandoned, nil)
		return e.drain(), nil
	case n == 1:
		winner := s.Participants[0].UserID
		e.finish(EndAbandoned, &winner)
		return e.drain(), nil
	case s.Mode == ModeTieBreak && len(s.Eligible) < 2:
		e.finishByScore(EndCompleted)
		return e.drain(), nil
	}

	if idx < s.TurnIndex {
		s.TurnIndex--
	}
	if wasTurn {
		// The participant after the leaver now sits at idx.
		next := idx % n
		if !e.eligible(next) {
			next = e.nextTurn(next)
		}
		e.setTurn(next)
	}

	if s.Status == StatusPaused && !e.anyDisconnected() {
		s.Status = StatusInProgress
		e.emit(EventResumed, nil)
	}
	return e.drain(), nil
}

// SetConnected records a transport disconnect or reconnect. A disconnect
// during a running game pauses the session until every participant is back.
func (e *GameEngine) SetConnected(userID string, connected bool) ([]Event, error) {
	s := e.state
	_, p := e.participant(userID)
	if p == nil {
		return nil, ErrNotParticipant
	}
	if p.Connected == connected {
		if connected {
			e.emitTo([]string{userID}, EventJoined, s.View())
		}
		return e.drain(), nil
	}

	p.Connected = connected
	payload := ParticipantPayload{UserID: userID, DisplayName: p.DisplayName}
	if !connected {
		e.emit(EventParticipantDisconnected, payload)
		if s.Status == StatusInProgress {
			s.Status = StatusPaused
			e.emit(EventPaused, nil)
		}
		return e.drain(), nil
	}

	e.emit(EventParticipantReconnected, payload)
	e.emitTo([]string{userID}, EventJoined, s.View())
	if s.Status == StatusPaused && !e.anyDisconnected() {
		s.Status = StatusInProgress
		e.emit(EventResumed, nil)
	}
	return e.drain(), nil
}

// ToggleReady flips the ready flag of a participant. When everyone is ready
// and enough participants are present the session moves to Starting.
func (e *GameEngine) ToggleReady(userID string) ([]Event, error) {
	s := e.state
	_, p := e.participant(userID)
	if p == nil {
		return nil, ErrNotParticipant
	}
	if s.Status != StatusWaiting {
		return nil, ErrNotWaiting
	}

	p.Ready = !p.Ready
	s.LastActivity = e.now()
	if len(s.Participants) >= MinParticipants && e.allReady() {
		s.Status = StatusStarting
	}
	e.emit(EventReadyChanged, ReadyPayload{UserID: userID, Ready: p.Ready, Status: s.Status})
	return e.drain(), nil
}

// Start deals the board and hands the first turn to the first participant.
// A start without enough participants ends with NoContest; a board that
// cannot be generated ends with Error and the cause is returned.
func (e *GameEngine) Start() ([]Event, error) {
	s := e.state
	if s.Status != StatusStarting {
		return nil, ErrGameAlreadyStarted
	}
	if len(s.Participants) < MinParticipants {
		e.finish(EndNoContest, nil)
		return e.drain(), nil
	}

	tiles, err := GenerateBoard(BoardSpec{
		Size:     s.Settings.BoardSize,
		Theme:    e.theme,
		PowerUps: s.Settings.PowerUps,
		Mode:     s.Settings.Mode,
	}, e.rng)
	if err != nil {
		return e.Fault(err), fmt.Errorf("generate board: %w", err)
	}

	now := e.now()
	s.Tiles = tiles
	s.FaceUpTileIDs = []int{}
	s.Status = StatusInProgress
	s.StartedAt = now
	s.LastActivity = now
	s.SecondsRemaining = CountdownSeconds(s.Settings)
	for _, p := range s.Participants {
		p.Ready = false
	}
	e.setTurnQuiet(0)

	e.emit(EventStarted, s.View())
	return e.drain(), nil
}

// Fault ends the session with reason Error and no winner.
func (e *GameEngine) Fault(err error) []Event {
	if e.state.Status == StatusFinished {
		return nil
	}
	e.finish(EndError, nil)
	return e.drain()
}

// Chat appends a message to the bounded chat log.
func (e *GameEngine) Chat(userID, text string) ([]Event, error) {
	s := e.state
	_, p := e.participant(userID)
	if p == nil {
		return nil, ErrNotParticipant
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrChatEmpty
	}
	if utf8.RuneCountInString(text) > MaxChatLength {
		return nil, ErrChatTooLong
	}

	msg := ChatMessage{UserID: userID, DisplayName: p.DisplayName, Text: text, SentAt: e.now()}
	s.Chat = append(s.Chat, msg)
	if len(s.Chat) > MaxChatHistory {
		s.Chat = s.Chat[len(s.Chat)-MaxChatHistory:]
	}
	s.LastActivity = msg.SentAt

	e.emit(EventChatMessage, msg)
	return e.drain(), nil
}

// CheckInvariants verifies the structural invariants of the state.
func (e *GameEngine) CheckInvariants() error {
	s := e.state
	if len(s.FaceUpTileIDs) > MaxFaceUp {
		return fmt.Errorf("%w: %d face-up tiles", ErrInvariantViolation, len(s.FaceUpTileIDs))
	}
	if len(s.Participants) > s.Settings.MaxParticipants {
		return fmt.Errorf("%w: %d participants exceed max %d",
			ErrInvariantViolation, len(s.Participants), s.Settings.MaxParticipants)
	}
	if len(s.Chat) > MaxChatHistory {
		return fmt.Errorf("%w: chat history has %d entries", ErrInvariantViolation, len(s.Chat))
	}

	if s.Status == StatusInProgress || s.Status == StatusPaused {
		turns := 0
		for i, p := range s.Participants {
			if p.IsCurrentTurn {
				turns++
				if i != s.TurnIndex {
					return fmt.Errorf("%w: turn flag at %d but turn index %d", ErrInvariantViolation, i, s.TurnIndex)
				}
			}
		}
		if turns != 1 {
			return fmt.Errorf("%w: %d participants hold the turn", ErrInvariantViolation, turns)
		}
	}

	for _, p := range s.Participants {
		if p.Score < 0 || p.MatchesFound < 0 || p.FlipsMade < 0 || p.MatchStreak < 0 {
			return fmt.Errorf("%w: negative counters for %s", ErrInvariantViolation, p.UserID)
		}
	}

	counts := make(map[string]int, len(s.Tiles)/2)
	for _, t := range s.Tiles {
		counts[t.Theme+"\x00"+t.Value]++
	}
	for k, c := range counts {
		if c%2 != 0 {
			return fmt.Errorf("%w: value %q appears %d times", ErrInvariantViolation, k, c)
		}
	}
	return nil
}

// finish moves the session to Finished and emits ended.
func (e *GameEngine) finish(reason EndReason, winner *string) {
	s := e.state
	if s.Status == StatusFinished {
		return
	}
	s.Status = StatusFinished
	s.EndReason = reason
	s.WinnerUserID = winner
	s.EndedAt = e.now()
	s.LastActivity = s.EndedAt
	s.TimerFrozen = false
	s.ExpiryPending = false
	for _, p := range s.Participants {
		p.IsCurrentTurn = false
	}

	scores := make(map[string]int, len(s.Participants)+len(s.Departed))
	for _, p := range s.Departed {
		scores[p.UserID] = p.Score
	}
	for _, p := range s.Participants {
		scores[p.UserID] = p.Score
	}
	e.emit(EventEnded, EndedPayload{Reason: reason, FinalScores: scores, WinnerUserID: cloneString(winner)})
}

// finishCompleted ends a cleared board. A shared top score has no winner.
func (e *GameEngine) finishCompleted() {
	leaders := e.leaders()
	if len(leaders) == 1 {
		e.finish(EndCompleted, &leaders[0])
		return
	}
	e.finish(EndNoContest, nil)
}

// finishByScore ends the session when a single leader exists, otherwise it
// starts another tie-break round or gives up with NoContest.
func (e *GameEngine) finishByScore(reason EndReason) {
	leaders := e.leaders()
	switch {
	case len(leaders) == 0:
		e.finish(reason, nil)
	case len(leaders) == 1:
		e.finish(reason, &leaders[0])
	case e.state.TieBreakRounds >= MaxTieBreakRounds:
		e.finish(EndNoContest, nil)
	default:
		e.startTieBreak(leaders)
	}
}

// leaders returns the user IDs holding the highest score.
func (e *GameEngine) leaders() []string {
	best := -1
	var ids []string
	for _, p := range e.state.Participants {
		switch {
		case p.Score > best:
			best = p.Score
			ids = []string{p.UserID}
		case p.Score == best:
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

func (e *GameEngine) participant(userID string) (int, *Participant) {
	for i, p := range e.state.Participants {
		if p.UserID == userID {
			return i, p
		}
	}
	return -1, nil
}

func (e *GameEngine) current() *Participant {
	s := e.state
	if s.TurnIndex < 0 || s.TurnIndex >= len(s.Participants) {
		return nil
	}
	return s.Participants[s.TurnIndex]
}

func (e *GameEngine) allReady() bool {
	for _, p := range e.state.Participants {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (e *GameEngine) anyDisconnected() bool {
	for _, p := range e.state.Participants {
		if !p.Connected {
			return true
		}
	}
	return false
}

func (e *GameEngine) emit(kind EventKind, payload any) {
	e.emitTo(nil, kind, payload)
}

func (e *GameEngine) emitTo(recipients []string, kind EventKind, payload any) {
	e.events = append(e.events, Event{
		Kind:       kind,
		RoomID:     e.state.RoomID,
		Payload:    payload,
		Recipients: recipients,
	})
}

func (e *GameEngine) drain() []Event {
	out := e.events
	e.events = nil
	return out
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
