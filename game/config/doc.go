// Package config provides theme and room-default management for the memory
// match server.
//
// The config package handles:
//   - Loading themes from YAML or JSON files
//   - Built-in themes available without any files
//   - Room defaults from defaults.yaml
//   - Theme discovery and listing
//
// Theme Format:
//
// A theme is a named symbol set. Every board of size N needs N*N/2 distinct
// symbols, so a theme with 8 symbols can only fill 4x4 boards while a theme
// with 32 or more can fill every size:
//
//	name: space
//	description: Things you find in orbit
//	symbols: ["🪐", "🌍", "🌕", "☄️", "🛰️", "👽", "🚀", "🌌"]
//
// Built-in Themes:
//   - classic: fruit, weather and objects (32 symbols)
//   - animals: animal faces (18 symbols)
//   - letters: letters and digits (36 symbols)
//
// A file in the config directory named like a built-in theme replaces it.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	theme, err := manager.Theme("animals")
//	defaults := manager.DefaultSettings()
package config
