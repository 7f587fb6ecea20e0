package engine

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Digest hashes the public projection of the state with xxhash64. Clients can
// recompute it from the events they received, so SecondsRemaining and hidden
// tile values are left out.
func (s *GameState) Digest() string {
	d := xxhash.New()
	field := func(v string) {
		_, _ = d.WriteString(v)
		_, _ = d.WriteString("|")
	}

	field(s.RoomID)
	field(string(s.Status))
	field(string(s.Mode))
	field(strconv.Itoa(s.Round))
	field(strconv.Itoa(s.TurnIndex))

	for _, p := range s.Participants {
		field(p.UserID)
		field(strconv.Itoa(p.Score))
		field(strconv.Itoa(p.MatchesFound))
	}
	for _, t := range s.Tiles {
		v := t.Masked()
		field(strconv.Itoa(v.ID))
		field(v.Value)
		field(strconv.FormatBool(v.FaceUp))
		field(strconv.FormatBool(v.Matched))
	}
	for _, id := range s.FaceUpTileIDs {
		field(strconv.Itoa(id))
	}
	for _, id := range s.Eligible {
		field(id)
	}

	return strconv.FormatUint(d.Sum64(), 16)
}
