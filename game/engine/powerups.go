package engine

// powerUpHandler applies one activation. consumed is false when the
// activation turned out to be a no-op and the use must not be charged.
type powerUpHandler func(e *GameEngine, p *Participant, pu PowerUp, targets []int) (consumed bool, err error)

var powerUpHandlers = map[PowerUpKind]powerUpHandler{
	ExtraTurn: nil, // passive, consumed on a mismatch
	Peek:      usePeek,
	Swap:      useSwap,
	RevealOne: useRevealOne,
	Freeze:    useFreeze,
	Shuffle:   useShuffle,
}

// UsePowerUp activates a held power-up for the participant holding the turn.
func (e *GameEngine) UsePowerUp(userID string, kind PowerUpKind, targets []int) ([]Event, error) {
	s := e.state
	if s.Status != StatusInProgress && s.Status != StatusPaused {
		return nil, ErrGameNotInProgress
	}
	_, p := e.participant(userID)
	if p == nil {
		return nil, ErrNotParticipant
	}
	if !p.IsCurrentTurn {
		return nil, ErrNotYourTurn
	}
	if s.Status == StatusPaused {
		return nil, ErrGameNotInProgress
	}
	if e.PairPending() {
		return nil, ErrPairResolving
	}

	handler, known := powerUpHandlers[kind]
	if !known {
		return nil, ErrUnknownPowerUp
	}
	if handler == nil {
		return nil, ErrPowerUpPassive
	}
	held := p.findPowerUp(kind)
	if held == nil {
		return nil, ErrPowerUpNotHeld
	}

	consumed, err := handler(e, p, *held, targets)
	if err != nil {
		e.drain()
		return nil, err
	}
	if !consumed {
		return e.drain(), nil
	}

	left, _ := p.consumePowerUp(kind)
	p.PowerUpsUsed++
	s.LastActivity = e.now()
	e.emit(EventPowerUpUsed, PowerUpPayload{UserID: userID, Kind: kind, UsesRemaining: left})
	return e.drain(), nil
}

func usePeek(e *GameEngine, p *Participant, pu PowerUp, _ []int) (bool, error) {
	duration := PeekDurationMs
	if pu.DurationMs != nil {
		duration = *pu.DurationMs
	}
	tiles := make([]TileView, 0, len(e.state.Tiles))
	for _, t := range e.state.Tiles {
		if !t.Matched {
			tiles = append(tiles, t.Revealed())
		}
	}
	e.emit(EventPeek, RevealPayload{UserID: p.UserID, DurationMs: duration, Tiles: tiles})
	return true, nil
}

func useSwap(e *GameEngine, p *Participant, _ PowerUp, targets []int) (bool, error) {
	if len(targets) != 2 || targets[0] == targets[1] {
		return false, ErrInvalidTarget
	}
	a, b := e.tile(targets[0]), e.tile(targets[1])
	if a == nil || b == nil {
		return false, ErrUnknownTile
	}
	if a.Matched || b.Matched || a.FaceUp || b.FaceUp {
		return false, nil
	}

	a.Value, b.Value = b.Value, a.Value
	a.Theme, b.Theme = b.Theme, a.Theme
	e.emit(EventTilesSwapped, SwapPayload{UserID: p.UserID, TileIDs: [2]int{a.ID, b.ID}})
	return true, nil
}

func useRevealOne(e *GameEngine, p *Participant, _ PowerUp, targets []int) (bool, error) {
	if len(targets) != 1 {
		return false, ErrInvalidTarget
	}
	t := e.tile(targets[0])
	if t == nil {
		return false, ErrUnknownTile
	}
	if t.Matched {
		return false, ErrInvalidTarget
	}
	e.emit(EventTileRevealed, RevealPayload{UserID: p.UserID, Tiles: []TileView{t.Revealed()}})
	return true, nil
}

func useFreeze(e *GameEngine, _ *Participant, pu PowerUp, _ []int) (bool, error) {
	s := e.state
	if s.SecondsRemaining == nil {
		return false, ErrNoCountdown
	}
	duration := FreezeDurationMs
	if pu.DurationMs != nil {
		duration = *pu.DurationMs
	}
	s.TimerFrozen = true
	e.emit(EventTimerFrozen, TimerPayload{SecondsRemaining: cloneInt(s.SecondsRemaining), DurationMs: duration})
	return true, nil
}

func useShuffle(e *GameEngine, p *Participant, _ PowerUp, _ []int) (bool, error) {
	s := e.state
	var idx []int
	for i, t := range s.Tiles {
		if !t.Matched {
			idx = append(idx, i)
		}
	}
	for i := len(idx) - 1; i > 0; i-- {
		j := e.rng.IntN(i + 1)
		a, b := &s.Tiles[idx[i]], &s.Tiles[idx[j]]
		a.Value, b.Value = b.Value, a.Value
		a.Theme, b.Theme = b.Theme, a.Theme
	}

	tiles := make([]TileView, 0, len(s.Tiles))
	for _, t := range s.Tiles {
		tiles = append(tiles, t.Masked())
	}
	e.emit(EventBoardShuffled, ShufflePayload{UserID: p.UserID, Tiles: tiles})
	return true, nil
}

// addPowerUp merges pu into the inventory and returns the held entry.
func (p *Participant) addPowerUp(pu PowerUp) PowerUp {
	for i := range p.PowerUps {
		if p.PowerUps[i].Kind == pu.Kind {
			p.PowerUps[i].UsesRemaining += pu.UsesRemaining
			return p.PowerUps[i]
		}
	}
	p.PowerUps = append(p.PowerUps, pu)
	return pu
}

func (p *Participant) findPowerUp(kind PowerUpKind) *PowerUp {
	for i := range p.PowerUps {
		if p.PowerUps[i].Kind == kind && p.PowerUps[i].UsesRemaining > 0 {
			return &p.PowerUps[i]
		}
	}
	return nil
}

// consumePowerUp charges one use of kind, dropping the entry at zero, and
// returns the uses left.
func (p *Participant) consumePowerUp(kind PowerUpKind) (int, bool) {
	for i := range p.PowerUps {
		if p.PowerUps[i].Kind != kind || p.PowerUps[i].UsesRemaining <= 0 {
			continue
		}
		p.PowerUps[i].UsesRemaining--
		left := p.PowerUps[i].UsesRemaining
		if left == 0 {
			p.PowerUps = append(p.PowerUps[:i], p.PowerUps[i+1:]...)
		}
		return left, true
	}
	return 0, false
}
