package engine

import "fmt"

// DefaultSettings returns the room settings used when neither the request nor
// the config directory provides a value.
func DefaultSettings() RoomSettings {
	return RoomSettings{
		BoardSize:       4,
		Theme:           "classic",
		PowerUps:        true,
		Mode:            ModeStandard,
		MaxParticipants: 4,
	}
}

// Merge fills the zero-valued fields of s from defaults. PowerUps is taken
// from s as given.
func (s RoomSettings) Merge(defaults RoomSettings) RoomSettings {
	if s.BoardSize == 0 {
		s.BoardSize = defaults.BoardSize
	}
	if s.Theme == "" {
		s.Theme = defaults.Theme
	}
	if s.Mode == "" {
		s.Mode = defaults.Mode
	}
	if s.MaxParticipants == 0 {
		s.MaxParticipants = defaults.MaxParticipants
	}
	if s.TimeLimitSeconds == 0 {
		s.TimeLimitSeconds = defaults.TimeLimitSeconds
	}
	return s
}

// ValidateSettings validates room settings for correctness and playability.
func ValidateSettings(s RoomSettings) error {
	if !ValidBoardSize(s.BoardSize) {
		return fmt.Errorf("%w: board_size must be one of %v, got %d", ErrInvalidSettings, BoardSizes, s.BoardSize)
	}
	if s.Theme == "" {
		return fmt.Errorf("%w: theme is required", ErrInvalidSettings)
	}

	switch s.Mode {
	case ModeStandard, ModeSpeed, ModePowerFrenzy:
	case ModeTieBreak:
		return fmt.Errorf("%w: tie_break cannot be selected as a room mode", ErrInvalidSettings)
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSettings, s.Mode)
	}

	if s.MaxParticipants < MinParticipants || s.MaxParticipants > MaxParticipantsLimit {
		return fmt.Errorf("%w: max_participants must be between %d and %d, got %d",
			ErrInvalidSettings, MinParticipants, MaxParticipantsLimit, s.MaxParticipants)
	}
	if s.TimeLimitSeconds != 0 && (s.TimeLimitSeconds < 10 || s.TimeLimitSeconds > 3600) {
		return fmt.Errorf("%w: time_limit_seconds must be between 10 and 3600, got %d",
			ErrInvalidSettings, s.TimeLimitSeconds)
	}
	return nil
}

// CountdownSeconds returns the initial countdown for the settings, or nil
// when the mode plays without a clock.
func CountdownSeconds(s RoomSettings) *int {
	var secs int
	switch s.Mode {
	case ModeSpeed:
		secs = DefaultSpeedSeconds
	case ModePowerFrenzy:
		secs = DefaultFrenzySeconds
	default:
		return nil
	}
	if s.TimeLimitSeconds > 0 {
		secs = s.TimeLimitSeconds
	}
	return &secs
}
