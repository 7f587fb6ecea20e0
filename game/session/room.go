package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/memory-match/game/anticheat"
	"github.com/wricardo/memory-match/game/engine"
	"github.com/wricardo/memory-match/game/service"
)

const inboxSize = 64

// message is anything a room goroutine receives.
type message interface{}

// request is a message whose sender waits for an error reply.
type request struct {
	reply chan error
}

func newRequest() request {
	return request{reply: make(chan error, 1)}
}

func (q request) respond(err error) {
	select {
	case q.reply <- err:
	default:
	}
}

type responder interface {
	respond(err error)
}

type (
	joinMsg struct {
		request
		req JoinRequest
	}
	leaveMsg struct {
		request
		userID string
	}
	disconnectMsg struct {
		request
		userID string
	}
	actionMsg struct {
		request
		userID string
		action Action
	}
	stopMsg struct {
		request
		save bool
	}
	viewMsg struct {
		reply chan engine.View
	}
	stateMsg struct {
		reply chan *engine.GameState
	}
	sweepMsg struct {
		cutoff time.Time
		reply  chan bool
	}

	resolveMsg   struct{ gen uint64 }
	tickMsg      struct{ gen uint64 }
	freezeEndMsg struct{ gen uint64 }
	startMsg     struct{ gen uint64 }
	graceMsg     struct {
		userID string
		gen    uint64
	}
)

// roomTimer is a single-shot timer that posts to the room inbox. Every
// schedule or stop bumps the generation so messages from replaced timers
// are dropped on arrival.
type roomTimer struct {
	t   *time.Timer
	gen uint64
}

func (rt *roomTimer) armed() bool {
	return rt.t != nil
}

func (rt *roomTimer) stop() {
	if rt.t != nil {
		rt.t.Stop()
		rt.t = nil
	}
	rt.gen++
}

// fired reports whether a timer message is current and disarms the timer.
func (rt *roomTimer) fired(gen uint64) bool {
	if gen != rt.gen || rt.t == nil {
		return false
	}
	rt.t = nil
	return true
}

// room owns one engine. All engine calls happen on the run goroutine.
type room struct {
	id       string
	password string
	eng      *engine.GameEngine
	m        *Manager
	logger   *zap.Logger

	inbox chan message
	done  chan struct{}

	summary atomic.Pointer[service.RoomSummary]

	// Owned by run.
	resolve      roomTimer
	tick         roomTimer
	freeze       roomTimer
	start        roomTimer
	grace        map[string]*roomTimer
	lastActivity time.Time
	finalized    bool
	closing      bool

	saves     chan *engine.GameState
	saverDone chan struct{}
}

func newRoom(m *Manager, id string, eng *engine.GameEngine, password string) *room {
	r := &room{
		id:           id,
		password:     password,
		eng:          eng,
		m:            m,
		logger:       m.logger.Named("room").With(zap.String("room_id", id)),
		inbox:        make(chan message, inboxSize),
		done:         make(chan struct{}),
		grace:        make(map[string]*roomTimer),
		lastActivity: m.now(),
		saves:        make(chan *engine.GameState, 1),
		saverDone:    make(chan struct{}),
	}
	r.updateSummary()
	return r
}

func (r *room) run() {
	go r.saver()

	for !r.closing {
		r.handle(<-r.inbox)
	}

	r.stopTimers()
	close(r.saves)
	<-r.saverDone
	close(r.done)
	r.m.forget(r)
	r.logger.Debug("room closed")
}

// handle processes one message. A panic faults the session instead of
// killing the server.
func (r *room) handle(msg message) {
	var err error
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("room panicked", zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("room fault: %v", p)
			r.fault(err)
		}
		if q, ok := msg.(responder); ok {
			q.respond(err)
		}
	}()
	err = r.dispatch(msg)
}

func (r *room) dispatch(msg message) error {
	switch msg := msg.(type) {
	case joinMsg:
		return r.handleJoin(msg.req)
	case leaveMsg:
		return r.handleLeave(msg.userID)
	case disconnectMsg:
		return r.handleDisconnect(msg.userID)
	case actionMsg:
		return r.handleAction(msg.userID, msg.action)
	case stopMsg:
		if msg.save && r.eng.Status() != engine.StatusWaiting {
			r.persist()
		}
		r.closing = true
	case viewMsg:
		msg.reply <- r.eng.View()
	case stateMsg:
		msg.reply <- r.eng.Snapshot()
	case sweepMsg:
		idle := r.idle(msg.cutoff)
		if idle {
			r.closing = true
		}
		msg.reply <- idle

	case resolveMsg:
		if r.resolve.fired(msg.gen) {
			r.apply(r.eng.ResolvePair())
		}
	case tickMsg:
		if r.tick.fired(msg.gen) {
			r.apply(r.eng.Tick())
		}
	case freezeEndMsg:
		if r.freeze.fired(msg.gen) {
			r.apply(r.eng.Unfreeze())
		}
	case startMsg:
		if r.start.fired(msg.gen) {
			events, err := r.eng.Start()
			if err != nil {
				r.logger.Error("failed to start game", zap.Error(err))
			}
			r.apply(events)
		}
	case graceMsg:
		rt, ok := r.grace[msg.userID]
		if !ok || !rt.fired(msg.gen) {
			return nil
		}
		delete(r.grace, msg.userID)
		if !r.eng.Connected(msg.userID) {
			r.logger.Info("grace period expired", zap.String("user_id", msg.userID))
			return r.handleLeave(msg.userID)
		}
	default:
		return fmt.Errorf("unexpected message %T", msg)
	}
	return nil
}

func (r *room) handleJoin(req JoinRequest) error {
	if r.eng.HasParticipant(req.UserID) {
		if rt, ok := r.grace[req.UserID]; ok {
			rt.stop()
			delete(r.grace, req.UserID)
		}
		events, err := r.eng.SetConnected(req.UserID, true)
		if err != nil {
			return err
		}
		r.touch()
		r.apply(events)
		return nil
	}

	if r.password != "" && subtle.ConstantTimeCompare([]byte(r.password), []byte(req.Password)) != 1 {
		return ErrWrongPassword
	}
	events, err := r.eng.AddParticipant(req.UserID, req.DisplayName)
	if errors.Is(err, engine.ErrGameAlreadyStarted) {
		return ErrRoomNotJoinable
	}
	if err != nil {
		return err
	}
	r.logger.Info("participant joined", zap.String("user_id", req.UserID))
	r.touch()
	r.apply(events)
	return nil
}

func (r *room) handleLeave(userID string) error {
	if rt, ok := r.grace[userID]; ok {
		rt.stop()
		delete(r.grace, userID)
	}
	events, err := r.eng.RemoveParticipant(userID)
	if err != nil {
		return err
	}
	r.logger.Info("participant left", zap.String("user_id", userID))
	r.touch()
	r.apply(events)

	if r.eng.ParticipantCount() == 0 {
		r.closing = true
	}
	return nil
}

// handleDisconnect opens the grace window during a running game. Anywhere
// else a lost connection is a leave.
func (r *room) handleDisconnect(userID string) error {
	if !r.eng.HasParticipant(userID) {
		return engine.ErrNotParticipant
	}
	switch r.eng.Status() {
	case engine.StatusInProgress, engine.StatusPaused:
	default:
		return r.handleLeave(userID)
	}

	events, err := r.eng.SetConnected(userID, false)
	if err != nil {
		return err
	}
	r.startGrace(userID)
	r.apply(events)
	return nil
}

func (r *room) startGrace(userID string) {
	rt, ok := r.grace[userID]
	if !ok {
		rt = &roomTimer{}
		r.grace[userID] = rt
	}
	r.schedule(rt, r.m.timing.GracePeriod, func(gen uint64) message {
		return graceMsg{userID: userID, gen: gen}
	})
}

// handleAction runs the anti-cheat gate and then the engine operation.
func (r *room) handleAction(userID string, a Action) error {
	if !r.eng.HasParticipant(userID) {
		return engine.ErrNotParticipant
	}
	if r.m.guard.IsBlocked(userID) {
		return ErrBlocked
	}
	switch a.Type {
	case ActionToggleReady, ActionFlip, ActionUsePowerUp, ActionChat:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}

	digest := r.eng.Digest()
	if a.Type == ActionFlip {
		if !r.m.guard.CompareDigest(userID, a.Digest, digest) {
			r.logger.Warn("client state out of sync, resending snapshot", zap.String("user_id", userID))
			r.m.publisher.Publish([]engine.Event{{
				Kind:       engine.EventJoined,
				RoomID:     r.id,
				Payload:    r.eng.View(),
				Recipients: []string{userID},
			}})
		}
		if c := a.ClaimedMatches; c != nil && (*c < 0 || *c > r.eng.PairsOnBoard()) {
			r.m.guard.Flag(userID, anticheat.ReasonImpossibleMatchCount,
				fmt.Sprintf("claimed %d of %d pairs", *c, r.eng.PairsOnBoard()))
			return ErrImpossibleClaim
		}
	}

	var events []engine.Event
	var err error
	switch a.Type {
	case ActionToggleReady:
		events, err = r.eng.ToggleReady(userID)
	case ActionFlip:
		events, err = r.eng.Flip(userID, a.TileID)
	case ActionUsePowerUp:
		events, err = r.eng.UsePowerUp(userID, a.Kind, a.Targets)
	case ActionChat:
		events, err = r.eng.Chat(userID, a.Text)
	}
	if err != nil {
		if engine.IsStructural(err) && r.running() {
			r.m.guard.Flag(userID, anticheat.ReasonInvalidAction, engine.ReasonCode(err))
		}
		return err
	}

	flags, err := r.m.guard.Record(userID, string(a.Type), digest)
	if err != nil {
		r.logger.Warn("action from blocked user", zap.String("user_id", userID), zap.Error(err))
	}
	if len(flags) > 0 {
		r.logger.Warn("suspicious timing",
			zap.String("user_id", userID),
			zap.Any("reasons", flags))
	}

	r.touch()
	r.apply(events)
	return nil
}

// running reports whether a game is being played, paused or not.
func (r *room) running() bool {
	st := r.eng.Status()
	return st == engine.StatusInProgress || st == engine.StatusPaused
}

// apply publishes events and arms whatever timers the new state needs.
func (r *room) apply(events []engine.Event) {
	if len(events) > 0 {
		r.m.publisher.Publish(events)
	}
	if err := r.eng.CheckInvariants(); err != nil && r.eng.Status() != engine.StatusFinished {
		r.logger.Error("invariant violated", zap.Error(err))
		r.fault(err)
		return
	}

	save := false
	for _, ev := range events {
		switch ev.Kind {
		case engine.EventStarted, engine.EventPairMatched, engine.EventPairMismatched, engine.EventTieBreakStarted:
			save = true
		case engine.EventTimerFrozen:
			r.schedule(&r.freeze, r.m.timing.FreezeLength, func(gen uint64) message { return freezeEndMsg{gen: gen} })
		}
	}

	switch r.eng.Status() {
	case engine.StatusFinished:
		r.finalize()
		r.updateSummary()
		return
	case engine.StatusStarting:
		if !r.start.armed() {
			r.schedule(&r.start, r.m.timing.StartDelay, func(gen uint64) message { return startMsg{gen: gen} })
		}
	}
	if r.eng.PairPending() && !r.resolve.armed() {
		r.schedule(&r.resolve, r.m.timing.RevealDelay, func(gen uint64) message { return resolveMsg{gen: gen} })
	}
	if r.eng.Ticking() && !r.tick.armed() {
		r.schedule(&r.tick, r.m.timing.TickInterval, func(gen uint64) message { return tickMsg{gen: gen} })
	}
	if save {
		r.persist()
	}
	r.updateSummary()
}

func (r *room) fault(cause error) {
	events := r.eng.Fault(cause)
	if len(events) > 0 {
		r.m.publisher.Publish(events)
	}
	r.finalize()
	r.updateSummary()
}

// finalize runs once when the session finishes: timers stop, the final
// snapshot is saved and the results are handed to the recorder.
func (r *room) finalize() {
	if r.finalized || r.eng.Status() != engine.StatusFinished {
		return
	}
	r.finalized = true
	r.stopTimers()
	r.touch()
	r.persist()

	results := r.eng.Results()
	r.logger.Info("game finished", zap.Int("participants", len(results)))
	if r.m.recorder != nil && len(results) > 0 {
		r.m.recordAsync(r.id, results)
	}
}

func (r *room) stopTimers() {
	r.resolve.stop()
	r.tick.stop()
	r.freeze.stop()
	r.start.stop()
	for userID, rt := range r.grace {
		rt.stop()
		delete(r.grace, userID)
	}
}

func (r *room) schedule(rt *roomTimer, d time.Duration, build func(gen uint64) message) {
	rt.stop()
	gen := rt.gen
	rt.t = time.AfterFunc(d, func() { r.post(build(gen)) })
}

// post delivers a message unless the room has closed.
func (r *room) post(msg message) bool {
	select {
	case r.inbox <- msg:
		return true
	case <-r.done:
		return false
	}
}

// call posts a request and waits for its reply.
func (r *room) call(ctx context.Context, msg message, q request) error {
	select {
	case r.inbox <- msg:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-q.reply:
		return err
	case <-r.done:
		select {
		case err := <-q.reply:
			return err
		default:
			return ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *room) join(ctx context.Context, req JoinRequest) error {
	q := newRequest()
	return r.call(ctx, joinMsg{request: q, req: req}, q)
}

func (r *room) leave(ctx context.Context, userID string) error {
	q := newRequest()
	return r.call(ctx, leaveMsg{request: q, userID: userID}, q)
}

func (r *room) disconnect(ctx context.Context, userID string) error {
	q := newRequest()
	return r.call(ctx, disconnectMsg{request: q, userID: userID}, q)
}

func (r *room) dispatchAction(ctx context.Context, userID string, a Action) error {
	q := newRequest()
	return r.call(ctx, actionMsg{request: q, userID: userID, action: a}, q)
}

func (r *room) stop(ctx context.Context, save bool) error {
	q := newRequest()
	err := r.call(ctx, stopMsg{request: q, save: save}, q)
	if errors.Is(err, ErrRoomClosed) {
		return nil
	}
	return err
}

func (r *room) view(ctx context.Context) (engine.View, error) {
	reply := make(chan engine.View, 1)
	select {
	case r.inbox <- viewMsg{reply: reply}:
	case <-r.done:
		return engine.View{}, ErrRoomClosed
	case <-ctx.Done():
		return engine.View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return engine.View{}, ErrRoomClosed
	case <-ctx.Done():
		return engine.View{}, ctx.Err()
	}
}

func (r *room) state(ctx context.Context) (*engine.GameState, error) {
	reply := make(chan *engine.GameState, 1)
	select {
	case r.inbox <- stateMsg{reply: reply}:
	case <-r.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sweep closes the room if it has been idle since before cutoff.
func (r *room) sweep(ctx context.Context, cutoff time.Time) bool {
	reply := make(chan bool, 1)
	select {
	case r.inbox <- sweepMsg{cutoff: cutoff, reply: reply}:
	case <-r.done:
		return false
	case <-ctx.Done():
		return false
	}
	select {
	case closed := <-reply:
		return closed
	case <-r.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// idle reports whether a room that is not mid-game has seen no activity
// since cutoff.
func (r *room) idle(cutoff time.Time) bool {
	switch r.eng.Status() {
	case engine.StatusWaiting, engine.StatusStarting, engine.StatusFinished:
		return r.lastActivity.Before(cutoff)
	}
	return false
}

func (r *room) touch() {
	r.lastActivity = r.m.now()
}

func (r *room) updateSummary() {
	s := r.eng.Settings()
	r.summary.Store(&service.RoomSummary{
		RoomID:           r.id,
		ParticipantCount: r.eng.ParticipantCount(),
		MaxParticipants:  s.MaxParticipants,
		Mode:             s.Mode,
		BoardSize:        s.BoardSize,
		Status:           r.eng.Status(),
		HasPassword:      r.password != "",
		LastActivity:     r.lastActivity,
	})
}

// persist queues a snapshot for the saver. A snapshot still waiting is
// replaced by the newer one.
func (r *room) persist() {
	if r.m.persistence == nil {
		return
	}
	state := r.eng.Snapshot()
	select {
	case r.saves <- state:
		return
	default:
	}
	select {
	case <-r.saves:
	default:
	}
	r.saves <- state
}

func (r *room) saver() {
	defer close(r.saverDone)
	for state := range r.saves {
		if err := r.m.persistence.Save(state); err != nil {
			r.logger.Error("failed to save snapshot", zap.Error(err))
		}
	}
}
