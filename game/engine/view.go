package engine

import "time"

// TileView is the outbound projection of a tile. Value, Theme and PowerUp are
// blank unless the tile is face up or matched.
type TileView struct {
	ID      int      `json:"id"`
	Value   string   `json:"value,omitempty"`
	Theme   string   `json:"theme,omitempty"`
	FaceUp  bool     `json:"face_up"`
	Matched bool     `json:"matched"`
	PowerUp *PowerUp `json:"power_up,omitempty"`
}

// View is the masked session projection sent to clients and served by the API.
type View struct {
	RoomID            string        `json:"room_id"`
	Settings          RoomSettings  `json:"settings"`
	HasPassword       bool          `json:"has_password"`
	Participants      []Participant `json:"participants"`
	Tiles             []TileView    `json:"tiles"`
	FaceUpTileIDs     []int         `json:"face_up_tile_ids"`
	TurnIndex         int           `json:"turn_index"`
	CurrentTurnUserID string        `json:"current_turn_user_id,omitempty"`
	Status            Status        `json:"status"`
	Mode              Mode          `json:"mode"`
	BaseMode          Mode          `json:"base_mode"`
	SecondsRemaining  *int          `json:"seconds_remaining"`
	TimerFrozen       bool          `json:"timer_frozen"`
	Round             int           `json:"round"`
	TieBreakRounds    int           `json:"tie_break_rounds"`
	Eligible          []string      `json:"eligible,omitempty"`
	Chat              []ChatMessage `json:"chat"`
	CreatedAt         time.Time     `json:"created_at"`
	StartedAt         time.Time     `json:"started_at"`
	EndedAt           time.Time     `json:"ended_at"`
	WinnerUserID      *string       `json:"winner_user_id"`
	EndReason         EndReason     `json:"end_reason,omitempty"`
}

// Masked returns the public projection of the tile.
func (t Tile) Masked() TileView {
	v := TileView{ID: t.ID, FaceUp: t.FaceUp, Matched: t.Matched}
	if t.FaceUp || t.Matched {
		v.Value = t.Value
		v.Theme = t.Theme
		v.PowerUp = clonePowerUp(t.PowerUp)
	}
	return v
}

// Revealed returns the projection of the tile with its value shown regardless of face state.
func (t Tile) Revealed() TileView {
	return TileView{
		ID:      t.ID,
		Value:   t.Value,
		Theme:   t.Theme,
		FaceUp:  t.FaceUp,
		Matched: t.Matched,
		PowerUp: clonePowerUp(t.PowerUp),
	}
}

// View builds the masked projection of the state. The result shares no memory with s.
func (s *GameState) View() View {
	settings := s.Settings
	settings.Password = ""

	v := View{
		RoomID:           s.RoomID,
		Settings:         settings,
		HasPassword:      s.Settings.Password != "",
		Participants:     make([]Participant, 0, len(s.Participants)),
		Tiles:            make([]TileView, 0, len(s.Tiles)),
		FaceUpTileIDs:    append([]int(nil), s.FaceUpTileIDs...),
		TurnIndex:        s.TurnIndex,
		Status:           s.Status,
		Mode:             s.Mode,
		BaseMode:         s.BaseMode,
		SecondsRemaining: cloneInt(s.SecondsRemaining),
		TimerFrozen:      s.TimerFrozen,
		Round:            s.Round,
		TieBreakRounds:   s.TieBreakRounds,
		Eligible:         append([]string(nil), s.Eligible...),
		Chat:             append([]ChatMessage(nil), s.Chat...),
		CreatedAt:        s.CreatedAt,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt,
		WinnerUserID:     cloneString(s.WinnerUserID),
		EndReason:        s.EndReason,
	}

	for _, p := range s.Participants {
		v.Participants = append(v.Participants, p.clone())
		if p.IsCurrentTurn {
			v.CurrentTurnUserID = p.UserID
		}
	}
	for _, t := range s.Tiles {
		v.Tiles = append(v.Tiles, t.Masked())
	}
	return v
}

// Clone returns a deep copy of the state, safe to hand to another goroutine.
func (s *GameState) Clone() *GameState {
	c := *s
	c.Participants = make([]*Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		pc := p.clone()
		c.Participants = append(c.Participants, &pc)
	}
	c.Departed = make([]Participant, 0, len(s.Departed))
	for _, p := range s.Departed {
		c.Departed = append(c.Departed, p.clone())
	}
	c.Tiles = make([]Tile, len(s.Tiles))
	for i, t := range s.Tiles {
		t.PowerUp = clonePowerUp(t.PowerUp)
		c.Tiles[i] = t
	}
	c.FaceUpTileIDs = append([]int(nil), s.FaceUpTileIDs...)
	c.Eligible = append([]string(nil), s.Eligible...)
	c.Chat = append([]ChatMessage(nil), s.Chat...)
	c.SecondsRemaining = cloneInt(s.SecondsRemaining)
	c.WinnerUserID = cloneString(s.WinnerUserID)
	return &c
}

func (p *Participant) clone() Participant {
	c := *p
	c.PowerUps = make([]PowerUp, 0, len(p.PowerUps))
	for _, pu := range p.PowerUps {
		pu.DurationMs = cloneInt(pu.DurationMs)
		c.PowerUps = append(c.PowerUps, pu)
	}
	return c
}

func clonePowerUp(p *PowerUp) *PowerUp {
	if p == nil {
		return nil
	}
	c := *p
	c.DurationMs = cloneInt(p.DurationMs)
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
