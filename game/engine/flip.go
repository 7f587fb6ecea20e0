package engine

// scoreMultipliers are expressed in tenths to keep scoring in integers.
var scoreMultipliers = map[Mode]int{
	ModeStandard:    10,
	ModeSpeed:       15,
	ModeTieBreak:    12,
	ModePowerFrenzy: 8,
}

// MatchPoints returns the points awarded for a match in mode with the given
// streak, counting the match itself.
func MatchPoints(mode Mode, streak int) int {
	mult, ok := scoreMultipliers[mode]
	if !ok {
		mult = 10
	}
	bonus := streak - 1
	if bonus < 0 {
		bonus = 0
	}
	return mult * (BaseMatchPoints + bonus*StreakBonusPoints) / 10
}

// Flip turns a tile face up for the participant holding the turn. The second
// flip of a turn leaves the pair pending until ResolvePair is called.
func (e *GameEngine) Flip(userID string, tileID int) ([]Event, error) {
	s := e.state
	_, p := e.participant(userID)
	if p == nil {
		return nil, ErrNotParticipant
	}
	if !p.IsCurrentTurn {
		return nil, ErrNotYourTurn
	}
	if s.Status != StatusInProgress {
		return nil, ErrGameNotInProgress
	}
	if len(s.FaceUpTileIDs) >= MaxFaceUp {
		return nil, ErrPairResolving
	}

	tile := e.tile(tileID)
	if tile == nil {
		return nil, ErrUnknownTile
	}
	if tile.Matched {
		return nil, ErrTileAlreadyMatched
	}
	if tile.FaceUp {
		return nil, ErrTileAlreadyFaceUp
	}

	tile.FaceUp = true
	s.FaceUpTileIDs = append(s.FaceUpTileIDs, tileID)
	p.FlipsMade++
	s.LastActivity = e.now()
	e.emit(EventTileFlipped, TileFlippedPayload{UserID: userID, Tile: tile.Masked()})

	if tile.PowerUp != nil {
		granted := *tile.PowerUp
		tile.PowerUp = nil
		held := p.addPowerUp(granted)
		e.emit(EventPowerUpGranted, PowerUpPayload{
			UserID:        userID,
			Kind:          granted.Kind,
			UsesRemaining: held.UsesRemaining,
			TileID:        &tileID,
		})
	}

	if len(s.FaceUpTileIDs) == MaxFaceUp {
		s.ResolvingUserID = userID
	}
	return e.drain(), nil
}

// PairPending reports whether two tiles are face up awaiting resolution.
func (e *GameEngine) PairPending() bool {
	return len(e.state.FaceUpTileIDs) == MaxFaceUp
}

// ResolvePair settles the pending pair: a match scores and keeps the turn
// (except in Speed), a mismatch flips both back and passes the turn unless
// the participant holds ExtraTurn.
func (e *GameEngine) ResolvePair() []Event {
	s := e.state
	if !e.PairPending() || s.Status == StatusFinished {
		return nil
	}

	a, b := e.tile(s.FaceUpTileIDs[0]), e.tile(s.FaceUpTileIDs[1])
	ids := [2]int{a.ID, b.ID}
	_, p := e.participant(s.ResolvingUserID)
	s.FaceUpTileIDs = []int{}
	s.ResolvingUserID = ""
	s.PairsPlayed++
	s.LastActivity = e.now()

	if p == nil {
		a.FaceUp, b.FaceUp = false, false
		return e.afterResolution()
	}

	if a.Value == b.Value && a.Theme == b.Theme {
		a.Matched, b.Matched = true, true
		p.MatchesFound++
		p.MatchStreak++
		if p.MatchStreak > p.MatchStreakMax {
			p.MatchStreakMax = p.MatchStreak
		}
		points := MatchPoints(s.Mode, p.MatchStreak)
		p.Score += points
		e.emit(EventPairMatched, PairPayload{
			UserID:      p.UserID,
			TileIDs:     ids,
			Points:      points,
			Score:       p.Score,
			MatchStreak: p.MatchStreak,
		})

		if e.allMatched() {
			e.finishCompleted()
			return e.drain()
		}
		if s.Mode == ModeSpeed {
			e.setTurn(e.nextTurn(s.TurnIndex))
		}
		return e.afterResolution()
	}

	a.FaceUp, b.FaceUp = false, false
	p.MatchStreak = 0
	e.emit(EventPairMismatched, PairPayload{
		UserID:  p.UserID,
		TileIDs: ids,
		Score:   p.Score,
	})

	if held, ok := p.consumePowerUp(ExtraTurn); ok {
		p.PowerUpsUsed++
		e.emit(EventPowerUpUsed, PowerUpPayload{
			UserID:        p.UserID,
			Kind:          ExtraTurn,
			UsesRemaining: held,
			Automatic:     true,
		})
	} else {
		e.setTurn(e.nextTurn(s.TurnIndex))
	}
	return e.afterResolution()
}

// afterResolution runs a timer expiry that arrived while the pair was pending.
func (e *GameEngine) afterResolution() []Event {
	if e.state.ExpiryPending && e.state.Status != StatusFinished {
		e.state.ExpiryPending = false
		e.expire()
	}
	return e.drain()
}

// flipBack turns the pending tiles face down without scoring.
func (e *GameEngine) flipBack() {
	s := e.state
	for _, id := range s.FaceUpTileIDs {
		if t := e.tile(id); t != nil {
			t.FaceUp = false
		}
	}
	s.FaceUpTileIDs = []int{}
	s.ResolvingUserID = ""
}

func (e *GameEngine) allMatched() bool {
	for _, t := range e.state.Tiles {
		if !t.Matched {
			return false
		}
	}
	return len(e.state.Tiles) > 0
}

func (e *GameEngine) tile(id int) *Tile {
	if id < 0 || id >= len(e.state.Tiles) {
		return nil
	}
	t := &e.state.Tiles[id]
	if t.ID != id {
		return nil
	}
	return t
}

// eligible reports whether the participant at i may hold the turn.
func (e *GameEngine) eligible(i int) bool {
	s := e.state
	if s.Mode != ModeTieBreak {
		return true
	}
	uid := s.Participants[i].UserID
	for _, id := range s.Eligible {
		if id == uid {
			return true
		}
	}
	return false
}

// nextTurn returns the index of the next eligible participant after from,
// wrapping around; from itself is the last candidate.
func (e *GameEngine) nextTurn(from int) int {
	n := len(e.state.Participants)
	for k := 1; k <= n; k++ {
		i := (from + k) % n
		if e.eligible(i) {
			return i
		}
	}
	return from % n
}

// setTurn hands the turn to the participant at i and emits turnChanged.
func (e *GameEngine) setTurn(i int) {
	e.setTurnQuiet(i)
	p := e.state.Participants[i]
	e.emit(EventTurnChanged, TurnPayload{UserID: p.UserID, TurnIndex: i})
}

func (e *GameEngine) setTurnQuiet(i int) {
	s := e.state
	s.TurnIndex = i
	for j, p := range s.Participants {
		p.IsCurrentTurn = j == i
	}
}
