package engine

// Ticking reports whether the countdown should advance on the next tick.
func (e *GameEngine) Ticking() bool {
	s := e.state
	return s.Status == StatusInProgress && s.SecondsRemaining != nil && !s.TimerFrozen && *s.SecondsRemaining > 0
}

// Tick advances the countdown by one second. Paused and frozen sessions keep
// their remaining time. Reaching zero while a pair is pending defers the
// expiry until the pair is resolved.
func (e *GameEngine) Tick() []Event {
	s := e.state
	if !e.Ticking() {
		return nil
	}

	*s.SecondsRemaining--
	e.emit(EventTimeRemaining, TimerPayload{SecondsRemaining: cloneInt(s.SecondsRemaining)})
	if *s.SecondsRemaining > 0 {
		return e.drain()
	}

	if e.PairPending() {
		s.ExpiryPending = true
		return e.drain()
	}
	e.expire()
	return e.drain()
}

// Unfreeze resumes a countdown stopped by Freeze.
func (e *GameEngine) Unfreeze() []Event {
	s := e.state
	if !s.TimerFrozen || s.Status == StatusFinished {
		return nil
	}
	s.TimerFrozen = false
	e.emit(EventTimerResumed, TimerPayload{SecondsRemaining: cloneInt(s.SecondsRemaining)})
	return e.drain()
}

// expire evaluates the outcome at timer exhaustion.
func (e *GameEngine) expire() {
	e.finishByScore(EndTimeout)
}

// startTieBreak deals the single-pair board to the tied leaders. The first
// mover is the first tied participant after the current turn holder.
func (e *GameEngine) startTieBreak(tied []string) {
	s := e.state
	tiles, err := GenerateTieBreakBoard(e.theme, e.rng)
	if err != nil {
		e.finish(EndError, nil)
		return
	}

	secs := TieBreakSeconds
	s.Mode = ModeTieBreak
	s.Round++
	s.TieBreakRounds++
	s.Tiles = tiles
	s.FaceUpTileIDs = []int{}
	s.ResolvingUserID = ""
	s.SecondsRemaining = &secs
	s.TimerFrozen = false
	s.ExpiryPending = false
	s.Eligible = append([]string(nil), tied...)

	e.emit(EventTieBreakStarted, TieBreakPayload{
		Round:            s.Round,
		Eligible:         append([]string(nil), tied...),
		SecondsRemaining: secs,
		Tiles:            s.View().Tiles,
	})
	e.setTurn(e.nextTurn(s.TurnIndex))
}
