package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wricardo/memory-match/game/anticheat"
	"github.com/wricardo/memory-match/game/engine"
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	rooms     RoomRegistry
	themes    ThemeCatalog
	suspicion SuspicionStore
}

// NewGameService creates a new game service instance
func NewGameService(rooms RoomRegistry, themes ThemeCatalog, suspicion SuspicionStore) GameService {
	return &gameServiceImpl{
		rooms:     rooms,
		themes:    themes,
		suspicion: suspicion,
	}
}

// ListRooms returns the discovery projection, most recently active first
func (s *gameServiceImpl) ListRooms(ctx context.Context, joinableOnly bool) ([]RoomSummary, error) {
	rooms := s.rooms.Summaries(joinableOnly)
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActivity.Equal(rooms[j].LastActivity) {
			return rooms[i].RoomID < rooms[j].RoomID
		}
		return rooms[i].LastActivity.After(rooms[j].LastActivity)
	})
	return rooms, nil
}

// GetRoom returns the masked snapshot of a live or archived room
func (s *gameServiceImpl) GetRoom(ctx context.Context, roomID string) (*RoomInfo, error) {
	roomID = strings.ToLower(strings.TrimSpace(roomID))
	if roomID == "" {
		return nil, ErrRoomNotFound
	}

	view, archived, err := s.rooms.Snapshot(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return &RoomInfo{Room: view, Archived: archived}, nil
}

// ListThemes returns the theme catalogue sorted by name
func (s *gameServiceImpl) ListThemes(ctx context.Context) ([]ThemeInfo, error) {
	themes, err := s.themes.ListThemes()
	if err != nil {
		return nil, fmt.Errorf("failed to list themes: %w", err)
	}
	sort.Slice(themes, func(i, j int) bool { return themes[i].Name < themes[j].Name })
	return themes, nil
}

// GetSuspicion returns the anti-cheat record of a user
func (s *gameServiceImpl) GetSuspicion(ctx context.Context, userID string) (*SuspicionInfo, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	st, known := s.suspicion.Status(userID)
	return suspicionInfo(st, known), nil
}

// ClearSuspicion drops the anti-cheat record of a user, lifting any block
func (s *gameServiceImpl) ClearSuspicion(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, ErrInvalidUserID
	}
	return s.suspicion.Clear(userID), nil
}

// GetRules summarizes the rules the engine enforces
func (s *gameServiceImpl) GetRules(ctx context.Context) *RulesInfo {
	modes := []engine.Mode{engine.ModeStandard, engine.ModeSpeed, engine.ModePowerFrenzy, engine.ModeTieBreak}
	rules := &RulesInfo{
		BoardSizes:        append([]int(nil), engine.BoardSizes...),
		MinParticipants:   engine.MinParticipants,
		MaxParticipants:   engine.MaxParticipantsLimit,
		BaseMatchPoints:   engine.BaseMatchPoints,
		StreakBonusPoints: engine.StreakBonusPoints,
		TieBreakSeconds:   engine.TieBreakSeconds,
		MaxTieBreaks:      engine.MaxTieBreakRounds,
		PowerUps:          powerUpCatalogue,
	}

	for _, mode := range modes {
		info := ModeInfo{
			Mode:            mode,
			ScoreMultiplier: float64(engine.MatchPoints(mode, 1)) / float64(engine.BaseMatchPoints),
			TurnAfterMatch:  "keep",
			PowerUpFraction: engine.PowerUpFraction(mode),
		}
		switch mode {
		case engine.ModeSpeed:
			info.TurnAfterMatch = "pass"
		case engine.ModeTieBreak:
			secs := engine.TieBreakSeconds
			info.CountdownSeconds = &secs
		}
		if info.CountdownSeconds == nil {
			info.CountdownSeconds = engine.CountdownSeconds(engine.RoomSettings{Mode: mode})
		}
		rules.Modes = append(rules.Modes, info)
	}
	return rules
}

var powerUpCatalogue = []PowerUpInfo{
	{Kind: engine.ExtraTurn, Description: "Keeps the turn after the next mismatch; used automatically", Passive: true},
	{Kind: engine.Peek, Description: "Reveals every unmatched tile to all players for 3 seconds"},
	{Kind: engine.Swap, Description: "Exchanges the values of two face-down tiles", Targets: 2},
	{Kind: engine.RevealOne, Description: "Reveals the value of one unmatched tile", Targets: 1},
	{Kind: engine.Freeze, Description: "Stops the countdown for 10 seconds"},
	{Kind: engine.Shuffle, Description: "Re-deals the values of every unmatched tile"},
}

func suspicionInfo(st anticheat.Status, known bool) *SuspicionInfo {
	reasons := st.Reasons
	if reasons == nil {
		reasons = []anticheat.Violation{}
	}
	return &SuspicionInfo{
		UserID:         st.UserID,
		Known:          known,
		ViolationCount: st.ViolationCount,
		Blocked:        st.Blocked,
		HistorySize:    st.HistorySize,
		Reasons:        reasons,
	}
}
