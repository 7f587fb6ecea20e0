package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wricardo/memory-match/game/engine"
	"github.com/wricardo/memory-match/game/service"
)

var (
	ErrThemeNotFound = errors.New("theme not found")
	ErrInvalidTheme  = errors.New("invalid theme")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DefaultsFile holds the room defaults inside the config directory.
const DefaultsFile = "defaults.yaml"

var themeExtensions = []string{".yaml", ".yml", ".json"}

// Manager handles theme loading and caching and the room defaults
type Manager struct {
	configDir string
	defaults  engine.RoomSettings
	themes    map[string]engine.Theme
	mu        sync.RWMutex
}

// NewManager creates a new configuration manager. An empty or missing
// directory leaves only the built-in themes and the engine defaults.
func NewManager(configDir string) (*Manager, error) {
	m := &Manager{
		configDir: configDir,
		themes:    make(map[string]engine.Theme),
	}
	if configDir != "" {
		info, err := os.Stat(configDir)
		switch {
		case os.IsNotExist(err):
			m.configDir = ""
		case err != nil:
			return nil, fmt.Errorf("failed to stat config directory: %w", err)
		case !info.IsDir():
			return nil, fmt.Errorf("config path is not a directory: %s", configDir)
		}
	}

	if err := m.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	return m, nil
}

// Dir returns the config directory, empty when running on built-ins.
func (m *Manager) Dir() string {
	return m.configDir
}

// Theme loads a theme by name. Files in the config directory shadow the
// built-in theme of the same name.
func (m *Manager) Theme(name string) (engine.Theme, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultThemeName
	}

	m.mu.RLock()
	if theme, exists := m.themes[name]; exists {
		m.mu.RUnlock()
		return copyTheme(theme), nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if theme, exists := m.themes[name]; exists {
		return copyTheme(theme), nil
	}

	theme, err := m.loadTheme(name)
	if err != nil {
		return engine.Theme{}, err
	}
	m.themes[name] = theme
	return copyTheme(theme), nil
}

// ListThemes returns information about every available theme
func (m *Manager) ListThemes() ([]service.ThemeInfo, error) {
	seen := make(map[string]bool)
	var themes []service.ThemeInfo

	files, err := m.themeFiles()
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		name := themeName(file)
		if seen[name] {
			continue
		}
		theme, err := m.Theme(name)
		if err != nil {
			// Skip invalid themes
			continue
		}
		seen[name] = true
		themes = append(themes, themeInfo(theme, file, false))
	}

	for _, theme := range builtinThemes {
		if seen[theme.Name] {
			continue
		}
		seen[theme.Name] = true
		themes = append(themes, themeInfo(theme, "", true))
	}
	return themes, nil
}

// DefaultSettings returns the room defaults
func (m *Manager) DefaultSettings() engine.RoomSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaults
}

// RefreshCache drops cached themes and reloads the defaults from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.themes = make(map[string]engine.Theme)
	m.mu.Unlock()
	return m.loadDefaults()
}

// SaveTheme validates a theme and writes it as YAML into the config directory.
func (m *Manager) SaveTheme(theme engine.Theme) error {
	if m.configDir == "" {
		return fmt.Errorf("no config directory")
	}
	theme.Name = strings.ToLower(strings.TrimSpace(theme.Name))
	if err := ValidateTheme(theme); err != nil {
		return err
	}

	data, err := yaml.Marshal(theme)
	if err != nil {
		return fmt.Errorf("failed to marshal theme: %w", err)
	}
	path := filepath.Join(m.configDir, theme.Name+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write theme file: %w", err)
	}

	m.mu.Lock()
	m.themes[theme.Name] = copyTheme(theme)
	m.mu.Unlock()
	return nil
}

// ValidateTheme checks that a theme can fill at least the smallest board.
func ValidateTheme(theme engine.Theme) error {
	if theme.Name == "" {
		return fmt.Errorf("%w: theme name is required", ErrInvalidTheme)
	}
	if strings.ContainsAny(theme.Name, `/\`) {
		return fmt.Errorf("%w: theme name %q contains a path separator", ErrInvalidTheme, theme.Name)
	}
	if MaxBoardSize(theme) == 0 {
		return fmt.Errorf("%w: theme %q has %d distinct symbols, need at least %d",
			ErrInvalidTheme, theme.Name, DistinctSymbols(theme), engine.BoardSizes[0]*engine.BoardSizes[0]/2)
	}
	return nil
}

// DistinctSymbols counts the usable symbols of a theme.
func DistinctSymbols(theme engine.Theme) int {
	seen := make(map[string]bool, len(theme.Symbols))
	for _, s := range theme.Symbols {
		if s != "" {
			seen[s] = true
		}
	}
	return len(seen)
}

// MaxBoardSize returns the largest board the theme can fill, or 0.
func MaxBoardSize(theme engine.Theme) int {
	n := DistinctSymbols(theme)
	max := 0
	for _, size := range engine.BoardSizes {
		if size*size/2 <= n {
			max = size
		}
	}
	return max
}

// loadTheme reads a theme from the config directory, falling back to the
// built-in set. Callers hold the write lock.
func (m *Manager) loadTheme(name string) (engine.Theme, error) {
	if m.configDir != "" {
		for _, ext := range themeExtensions {
			path := filepath.Join(m.configDir, name+ext)
			data, err := os.ReadFile(path)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return engine.Theme{}, fmt.Errorf("failed to read theme file: %w", err)
			}
			theme, err := parseTheme(data, ext)
			if err != nil {
				return engine.Theme{}, fmt.Errorf("failed to parse theme %s: %w", name, err)
			}
			if theme.Name == "" {
				theme.Name = name
			}
			theme.Name = strings.ToLower(theme.Name)
			if err := ValidateTheme(theme); err != nil {
				return engine.Theme{}, err
			}
			return theme, nil
		}
	}

	for _, theme := range builtinThemes {
		if theme.Name == name {
			return copyTheme(theme), nil
		}
	}
	return engine.Theme{}, fmt.Errorf("%w: %s", ErrThemeNotFound, name)
}

// ParseThemeFile reads a theme file in YAML or JSON.
func ParseThemeFile(path string) (engine.Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Theme{}, err
	}
	theme, err := parseTheme(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return engine.Theme{}, err
	}
	if theme.Name == "" {
		theme.Name = themeName(filepath.Base(path))
	}
	return theme, nil
}

func parseTheme(data []byte, ext string) (engine.Theme, error) {
	var theme engine.Theme
	var err error
	if ext == ".json" {
		err = json.Unmarshal(data, &theme)
	} else {
		err = yaml.Unmarshal(data, &theme)
	}
	return theme, err
}

// loadDefaults reads defaults.yaml over the engine defaults.
func (m *Manager) loadDefaults() error {
	defaults := engine.DefaultSettings()
	if m.configDir != "" {
		data, err := os.ReadFile(filepath.Join(m.configDir, DefaultsFile))
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return fmt.Errorf("failed to read %s: %w", DefaultsFile, err)
		default:
			if err := yaml.Unmarshal(data, &defaults); err != nil {
				return fmt.Errorf("failed to parse %s: %w", DefaultsFile, err)
			}
		}
	}

	if err := engine.ValidateSettings(defaults); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	m.mu.Lock()
	m.defaults = defaults
	m.mu.Unlock()
	return nil
}

// themeFiles lists theme files in the config directory.
func (m *Manager) themeFiles() ([]string, error) {
	if m.configDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == DefaultsFile {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, want := range themeExtensions {
			if ext == want {
				files = append(files, entry.Name())
				break
			}
		}
	}
	return files, nil
}

func themeName(filename string) string {
	return strings.ToLower(strings.TrimSuffix(filename, filepath.Ext(filename)))
}

func themeInfo(theme engine.Theme, filename string, builtin bool) service.ThemeInfo {
	return service.ThemeInfo{
		Name:         theme.Name,
		Description:  theme.Description,
		Filename:     filename,
		SymbolCount:  DistinctSymbols(theme),
		MaxBoardSize: MaxBoardSize(theme),
		BuiltIn:      builtin,
	}
}
