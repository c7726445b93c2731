// Package config loads and saves the persisted application state
// (§6): library folders, playlists, playback mode, theme, and audio
// preferences, rooted at TUNETUI_CONFIG_DIR or the platform default.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/tunetui/tunetui/internal/model"
)

const envConfigDir = "TUNETUI_CONFIG_DIR"

// Manager owns the on-disk state.json document.
type Manager struct {
	dir string
	v   *viper.Viper
}

// NewManager resolves the config directory (TUNETUI_CONFIG_DIR, or the
// platform default under the user's home directory) and prepares a
// Manager for it. It does not touch the filesystem until Load or Save.
func NewManager() (*Manager, error) {
	dir, err := resolveConfigDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("state")
	v.SetConfigType("json")
	v.AddConfigPath(dir)

	return &Manager{dir: dir, v: v}, nil
}

func resolveConfigDir() (string, error) {
	if override := os.Getenv(envConfigDir); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tunetui"), nil
}

// Dir returns the resolved config root.
func (m *Manager) Dir() string { return m.dir }

// StatePath returns the absolute path of state.json.
func (m *Manager) StatePath() string { return filepath.Join(m.dir, "state.json") }

// Load reads state.json, tolerating unknown fields, and creating a
// fresh default document on first run. Read failures other than
// "file does not exist" default to an empty state rather than
// aborting startup (§7 ConfigIO).
func (m *Manager) Load() (model.PersistedState, error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return model.DefaultPersistedState(), fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(m.StatePath()); os.IsNotExist(err) {
		state := model.DefaultPersistedState()
		if saveErr := m.Save(state); saveErr != nil {
			return state, saveErr
		}
		return state, nil
	}

	if err := m.v.ReadInConfig(); err != nil {
		return model.DefaultPersistedState(), fmt.Errorf("read state.json: %w", err)
	}

	state := model.DefaultPersistedState()
	if err := m.v.Unmarshal(&state); err != nil {
		return model.DefaultPersistedState(), fmt.Errorf("parse state.json: %w", err)
	}
	return state, nil
}

// Save persists state to state.json, creating the config directory if
// needed.
func (m *Manager) Save(state model.PersistedState) error {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	fields := map[string]any{
		"folders":                state.Folders,
		"playlists":              state.Playlists,
		"playback_mode":          state.PlaybackMode,
		"theme":                  state.Theme,
		"loudness_normalization": state.LoudnessNormalization,
		"crossfade_seconds":      state.CrossfadeSeconds,
		"stats_enabled":          state.StatsEnabled,
	}
	if state.SelectedOutputDevice != nil {
		fields["selected_output_device"] = *state.SelectedOutputDevice
	}
	for key, value := range fields {
		m.v.Set(key, value)
	}

	path := m.StatePath()
	if err := m.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write state.json: %w", err)
	}
	return nil
}
