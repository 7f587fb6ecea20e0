package config

import "github.com/wricardo/memory-match/game/engine"

// DefaultThemeName is the theme used when a room does not ask for one.
const DefaultThemeName = "classic"

// builtinThemes are always available, even without a config directory.
// Files in the config directory with the same name take precedence.
var builtinThemes = []engine.Theme{
	{
		Name:        "classic",
		Description: "Fruit, weather and everyday objects",
		Symbols: []string{
			"🍎", "🍌", "🍇", "🍓", "🍒", "🍑", "🍍", "🥝",
			"🥕", "🌽", "🍄", "🌵", "🌻", "🌈", "⭐", "🌙",
			"🌞", "⚡", "🔥", "💧", "⛄", "🎈", "🎁", "🎲",
			"🎸", "🎺", "🚀", "⚓", "🔑", "💎", "🔔", "🎯",
		},
	},
	{
		Name:        "animals",
		Description: "Animal faces",
		Symbols: []string{
			"🐶", "🐱", "🐭", "🐹", "🐰", "🦊", "🐻", "🐼", "🐨",
			"🐯", "🦁", "🐮", "🐷", "🐸", "🐵", "🐔", "🐧", "🐙",
		},
	},
	{
		Name:        "letters",
		Description: "Latin letters and digits",
		Symbols: []string{
			"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L",
			"M", "N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X",
			"Y", "Z", "0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
		},
	},
}

// BuiltinThemes returns copies of the built-in themes.
func BuiltinThemes() []engine.Theme {
	out := make([]engine.Theme, 0, len(builtinThemes))
	for _, t := range builtinThemes {
		out = append(out, copyTheme(t))
	}
	return out
}

func copyTheme(t engine.Theme) engine.Theme {
	t.Symbols = append([]string(nil), t.Symbols...)
	return t
}
