package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wricardo/memory-match/game/engine"
	"github.com/wricardo/memory-match/game/service"
)

var roomIDPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

func validRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// NormalizeRoomID lower-cases and trims a room ID.
func NormalizeRoomID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

const joinAttempts = 3

// Option configures a Manager.
type Option func(*Manager)

// WithPersistence saves snapshots at start, after each pair and at the end.
func WithPersistence(p SessionPersistence) Option {
	return func(m *Manager) { m.persistence = p }
}

// WithRecorder hands finished results to r.
func WithRecorder(r ResultRecorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithGuard sets the anti-cheat gate.
func WithGuard(g Guard) Option {
	return func(m *Manager) { m.guard = g }
}

// WithPublisher sets the outbound event sink.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithTiming overrides the room delays.
func WithTiming(t Timing) Option {
	return func(m *Manager) { m.timing = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock sets the clock used for activity tracking and sweeps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEngineOptions passes options to every engine the manager creates.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(m *Manager) { m.engineOpts = append(m.engineOpts, opts...) }
}

// Manager is the room registry. It creates rooms on first join, routes
// actions to their goroutines and removes them when they close.
type Manager struct {
	rooms       map[string]*room
	themes      ThemeSource
	persistence SessionPersistence
	recorder    ResultRecorder
	guard       Guard
	publisher   Publisher
	timing      Timing
	logger      *zap.Logger
	now         func() time.Time
	engineOpts  []engine.Option

	mu       sync.RWMutex
	wg       sync.WaitGroup
	shutdown bool
}

// NewManager creates a room registry backed by themes.
func NewManager(themes ThemeSource, opts ...Option) *Manager {
	m := &Manager{
		rooms:     make(map[string]*room),
		themes:    themes,
		guard:     nopGuard{},
		publisher: nopPublisher{},
		timing:    DefaultTiming(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("session")
	return m
}

// Join attaches a user to a room, creating it with the request settings
// merged over the defaults when it does not exist. An empty room ID creates
// a room with a generated ID. It returns the room ID.
func (m *Manager) Join(ctx context.Context, req JoinRequest) (string, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return "", ErrInvalidUserID
	}
	req.RoomID = NormalizeRoomID(req.RoomID)
	if req.RoomID == "" {
		req.RoomID = generateRoomID()
	}
	if !validRoomID(req.RoomID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomID, req.RoomID)
	}
	if m.guard.IsBlocked(req.UserID) {
		return "", ErrBlocked
	}

	for attempt := 0; attempt < joinAttempts; attempt++ {
		r, err := m.getOrCreate(req)
		if err != nil {
			return "", err
		}
		err = r.join(ctx, req)
		if errors.Is(err, ErrRoomClosed) {
			// The room closed between lookup and delivery.
			m.forget(r)
			continue
		}
		return req.RoomID, err
	}
	return "", ErrRoomClosed
}

// Leave removes a participant from a room.
func (m *Manager) Leave(ctx context.Context, roomID, userID string) error {
	r, err := m.get(roomID)
	if err != nil {
		return err
	}
	return r.leave(ctx, userID)
}

// Disconnect reports a lost connection. During a running game it opens the
// grace window; otherwise it is a leave.
func (m *Manager) Disconnect(ctx context.Context, roomID, userID string) error {
	r, err := m.get(roomID)
	if err != nil {
		return err
	}
	return r.disconnect(ctx, userID)
}

// Dispatch delivers a gameplay action to the room goroutine.
func (m *Manager) Dispatch(ctx context.Context, roomID, userID string, action Action) error {
	if m.guard.IsBlocked(userID) {
		return ErrBlocked
	}
	r, err := m.get(roomID)
	if err != nil {
		return err
	}
	return r.dispatchAction(ctx, userID, action)
}

// Snapshot returns the masked view of a live room, or of its persisted
// snapshot when it is no longer in memory. The boolean reports the latter.
func (m *Manager) Snapshot(ctx context.Context, roomID string) (engine.View, bool, error) {
	roomID = NormalizeRoomID(roomID)
	if r, err := m.get(roomID); err == nil {
		v, err := r.view(ctx)
		if err == nil {
			return v, false, nil
		}
		if !errors.Is(err, ErrRoomClosed) {
			return engine.View{}, false, err
		}
	}

	if m.persistence == nil || !m.persistence.Exists(roomID) {
		return engine.View{}, false, ErrRoomNotFound
	}
	state, err := m.persistence.Load(roomID)
	if err != nil {
		return engine.View{}, false, fmt.Errorf("failed to load persisted room: %w", err)
	}
	return state.View(), true, nil
}

// Summaries returns the discovery projection of the live rooms.
func (m *Manager) Summaries(joinableOnly bool) []service.RoomSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]service.RoomSummary, 0, len(m.rooms))
	for _, r := range m.rooms {
		s := *r.summary.Load()
		if joinableOnly && !s.Joinable() {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Count returns the number of live rooms
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Sweep closes rooms that are not mid-game and have been idle longer than
// the idle timeout, then purges finished snapshots past the retention
// window. It returns the number of rooms closed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	cutoff := now.Add(-m.timing.IdleTimeout)

	closed := 0
	for _, r := range m.list() {
		if s := r.summary.Load(); !s.LastActivity.Before(cutoff) {
			continue
		}
		if r.sweep(ctx, cutoff) {
			closed++
		}
	}
	if closed > 0 {
		m.logger.Info("swept idle rooms", zap.Int("closed", closed))
	}

	if m.persistence != nil {
		purged, err := m.persistence.PurgeFinished(now.Add(-m.timing.Retention))
		if err != nil {
			m.logger.Warn("failed to purge snapshots", zap.Error(err))
		}
		if purged > 0 {
			m.logger.Info("purged finished snapshots", zap.Int("purged", purged))
		}
	}
	return closed
}

// Run sweeps periodically until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.timing.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// SaveAll saves a snapshot of every started room.
func (m *Manager) SaveAll(ctx context.Context) error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	var errs error
	for _, r := range m.list() {
		state, err := r.state(ctx)
		if errors.Is(err, ErrRoomClosed) {
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("snapshot %s: %w", r.id, err))
			continue
		}
		if state.Status == engine.StatusWaiting {
			continue
		}
		if err := m.persistence.Save(state); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("save %s: %w", r.id, err))
		}
	}
	return errs
}

// RestoreRooms reloads persisted games that had not finished. Every
// participant starts disconnected with a fresh grace window, so a restored
// game is abandoned unless its players come back.
func (m *Manager) RestoreRooms(ctx context.Context) (int, error) {
	if m.persistence == nil {
		return 0, nil
	}
	ids, err := m.persistence.ListAll()
	if err != nil {
		return 0, fmt.Errorf("failed to list persisted rooms: %w", err)
	}

	var errs error
	restored := 0
	for _, id := range ids {
		state, err := m.persistence.Load(id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("load %s: %w", id, err))
			continue
		}
		if state.Status != engine.StatusInProgress && state.Status != engine.StatusPaused {
			continue
		}
		theme, err := m.themes.Theme(state.Settings.Theme)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("restore %s: %w: %v", id, ErrUnknownTheme, err))
			continue
		}
		eng, err := engine.Restore(state, theme, m.engineOpts...)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("restore %s: %w", id, err))
			continue
		}

		m.mu.Lock()
		if _, exists := m.rooms[state.RoomID]; exists || m.shutdown {
			m.mu.Unlock()
			continue
		}
		r := newRoom(m, state.RoomID, eng, "")
		m.rooms[state.RoomID] = r
		m.start(r)
		m.mu.Unlock()

		for _, p := range state.Participants {
			if err := r.disconnect(ctx, p.UserID); err != nil && !errors.Is(err, ErrRoomClosed) {
				errs = multierr.Append(errs, fmt.Errorf("restore %s: %w", id, err))
			}
		}
		restored++
	}

	if restored > 0 {
		m.logger.Info("restored persisted rooms", zap.Int("restored", restored))
	}
	return restored, errs
}

// Shutdown saves every started room, stops all room goroutines and waits
// for pending result recordings.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()

	var errs error
	for _, r := range m.list() {
		errs = multierr.Append(errs, r.stop(ctx, true))
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = multierr.Append(errs, ctx.Err())
	}
	return errs
}

func (m *Manager) getOrCreate(req JoinRequest) (*room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil, ErrShuttingDown
	}
	if r, exists := m.rooms[req.RoomID]; exists {
		return r, nil
	}

	settings := m.themes.DefaultSettings()
	if req.Settings != nil {
		settings = req.Settings.Merge(settings)
	}
	settings.Password = req.Password

	theme, err := m.themes.Theme(settings.Theme)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTheme, settings.Theme)
	}
	eng, err := engine.NewEngine(req.RoomID, settings, theme, m.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	r := newRoom(m, req.RoomID, eng, settings.Password)
	m.rooms[req.RoomID] = r
	m.start(r)
	m.logger.Info("room created",
		zap.String("room_id", req.RoomID),
		zap.String("mode", string(settings.Mode)),
		zap.Int("board_size", settings.BoardSize))
	return r, nil
}

// start launches the room goroutine. Callers hold m.mu.
func (m *Manager) start(r *room) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.run()
	}()
}

func (m *Manager) get(roomID string) (*room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, exists := m.rooms[NormalizeRoomID(roomID)]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// forget removes r from the registry unless the ID already points elsewhere.
func (m *Manager) forget(r *room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[r.id] == r {
		delete(m.rooms, r.id)
	}
}

func (m *Manager) list() []*room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}

// recordAsync hands results to the recorder off the room goroutine.
func (m *Manager) recordAsync(roomID string, results []engine.GameResult) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.recorder.Record(ctx, results); err != nil {
			m.logger.Error("failed to record results", zap.String("room_id", roomID), zap.Error(err))
		}
	}()
}

// generateRoomID returns a short random room ID
func generateRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
