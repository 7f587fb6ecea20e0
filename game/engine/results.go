package engine

// Results returns one GameResult per participant, departed participants
// included as losses. It is empty until the session has finished.
func (e *GameEngine) Results() []GameResult {
	s := e.state
	if s.Status != StatusFinished {
		return nil
	}

	var duration int64
	if !s.StartedAt.IsZero() {
		duration = s.EndedAt.Sub(s.StartedAt).Milliseconds()
	}
	winner := ""
	if s.WinnerUserID != nil {
		winner = *s.WinnerUserID
	}

	result := func(p *Participant) GameResult {
		return GameResult{
			RoomID:         s.RoomID,
			UserID:         p.UserID,
			Won:            winner != "" && p.UserID == winner,
			Score:          p.Score,
			MatchesFound:   p.MatchesFound,
			FlipsMade:      p.FlipsMade,
			MatchStreakMax: p.MatchStreakMax,
			PowerUpsUsed:   p.PowerUpsUsed,
			Mode:           s.BaseMode,
			BoardSize:      s.Settings.BoardSize,
			DurationMs:     duration,
			EndReason:      s.EndReason,
			EndedAt:        s.EndedAt,
		}
	}

	out := make([]GameResult, 0, len(s.Participants)+len(s.Departed))
	for _, p := range s.Participants {
		out = append(out, result(p))
	}
	for i := range s.Departed {
		r := result(&s.Departed[i])
		r.Won = false
		out = append(out, r)
	}
	return out
}
