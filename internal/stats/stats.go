// Package stats persists listen history: per-track play counts and
// listened seconds, plus a bounded event log, to stats.json (§6, §7).
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxEvents               = 20000
	minTrackedListenSeconds = 10
	statsSchemaVersion      = 2
)

// TrackTotals accumulates a track's lifetime play count and listened seconds.
type TrackTotals struct {
	PlayCount     uint64 `json:"play_count"`
	ListenSeconds uint64 `json:"listen_seconds"`
}

// ListenEvent is one recorded listening session.
type ListenEvent struct {
	TrackPath             string  `json:"track_path"`
	Title                 string  `json:"title"`
	Artist                *string `json:"artist,omitempty"`
	Album                 *string `json:"album,omitempty"`
	ProviderTrackID       *string `json:"provider_track_id,omitempty"`
	StartedAtEpochSeconds int64   `json:"started_at_epoch_seconds"`
	ListenedSeconds       uint32  `json:"listened_seconds"`
	CountedPlay           bool    `json:"counted_play"`
}

// Store is the stats.json document.
type Store struct {
	SchemaVersion       uint32                 `json:"schema_version"`
	ProviderTrackKeyMap map[string]string      `json:"provider_track_key_map"`
	TrackTotals         map[string]TrackTotals `json:"track_totals"`
	Events              []ListenEvent          `json:"events"`
}

// NewStore returns an empty, current-schema Store.
func NewStore() *Store {
	return &Store{
		SchemaVersion:       statsSchemaVersion,
		ProviderTrackKeyMap: map[string]string{},
		TrackTotals:         map[string]TrackTotals{},
	}
}

// ListenSessionRecord is what the playback layer reports when a
// listening session ends.
type ListenSessionRecord struct {
	TrackPath             string
	Title                 string
	Artist                *string
	Album                 *string
	ProviderTrackID       *string
	StartedAtEpochSeconds int64
	ListenedSeconds       uint32
	Completed             bool
	DurationSeconds       *uint32
	CountedPlayOverride   *bool
	AllowShortListen      bool
}

// Path returns the absolute path of stats.json under dir.
func Path(dir string) string { return filepath.Join(dir, "stats.json") }

// Load reads stats.json, returning a fresh Store if it does not exist.
func Load(dir string) (*Store, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	store := NewStore()
	if err := json.Unmarshal(data, store); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if store.ProviderTrackKeyMap == nil {
		store.ProviderTrackKeyMap = map[string]string{}
	}
	if store.TrackTotals == nil {
		store.TrackTotals = map[string]TrackTotals{}
	}
	return store, nil
}

// Save writes the store to stats.json: the previous file, if any, is
// renamed to stats.json.bak, then the new document is written to a
// temp file and renamed into place atomically.
func Save(dir string, store *Store) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	path := Path(dir)
	if _, err := os.Stat(path); err == nil {
		backup := path + ".bak"
		_ = os.Rename(path, backup)
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// RecordListen folds a finished listening session into the store: it
// updates (or skips) per-track totals and appends a bounded event.
func (s *Store) RecordListen(record ListenSessionRecord) {
	countedPlay := false
	if record.CountedPlayOverride != nil {
		countedPlay = *record.CountedPlayOverride
	} else {
		countedPlay = shouldCountAsPlay(record.ListenedSeconds, record.Completed, record.DurationSeconds)
	}

	if record.ListenedSeconds < minTrackedListenSeconds && !countedPlay && !record.AllowShortListen {
		return
	}

	providerID := normalizeProviderTrackID(record.ProviderTrackID)
	if providerID != nil {
		if metaKey := metadataTrackKey(record.Artist, record.Title); metaKey != "" {
			if _, exists := s.ProviderTrackKeyMap[*providerID]; !exists {
				s.ProviderTrackKeyMap[*providerID] = metaKey
			}
		}
	}

	key := s.resolveTrackKey(record.Title, record.Artist, record.TrackPath, providerID)
	totals := s.TrackTotals[key]
	totals.ListenSeconds += uint64(record.ListenedSeconds)
	if countedPlay {
		totals.PlayCount++
	}
	s.TrackTotals[key] = totals

	s.Events = append(s.Events, ListenEvent{
		TrackPath:             record.TrackPath,
		Title:                 record.Title,
		Artist:                record.Artist,
		Album:                 record.Album,
		ProviderTrackID:       providerID,
		StartedAtEpochSeconds: record.StartedAtEpochSeconds,
		ListenedSeconds:       record.ListenedSeconds,
		CountedPlay:           countedPlay,
	})

	if len(s.Events) > maxEvents {
		drop := len(s.Events) - maxEvents
		s.Events = s.Events[drop:]
	}
}

func (s *Store) resolveTrackKey(title string, artist *string, trackPath string, providerID *string) string {
	if providerID != nil {
		if mapped, ok := s.ProviderTrackKeyMap[*providerID]; ok {
			return mapped
		}
	}
	if metaKey := metadataTrackKey(artist, title); metaKey != "" {
		return metaKey
	}
	if providerID != nil {
		return "provider:" + *providerID
	}
	return legacyPathKey(trackPath)
}

// shouldCountAsPlay mirrors the "30 seconds or completed" heuristic:
// tracks under 30 seconds long only count when they played to completion.
func shouldCountAsPlay(listenedSeconds uint32, completed bool, durationSeconds *uint32) bool {
	if durationSeconds != nil && *durationSeconds < 30 {
		return completed
	}
	return listenedSeconds >= 30
}

func normalizeProviderTrackID(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	lower := strings.ToLower(trimmed)
	return &lower
}

func metadataTrackKey(artist *string, title string) string {
	if artist == nil {
		return ""
	}
	normalizedArtist := normalizeArtistForMatch(*artist)
	normalizedTitle := normalizeTextForMatch(title)
	if normalizedArtist == "" || normalizedTitle == "" {
		return ""
	}
	return fmt.Sprintf("meta:%s|%s", normalizedArtist, normalizedTitle)
}

var featuredMarkers = []string{" feat.", " feat ", " ft.", " ft ", " featuring "}

func normalizeArtistForMatch(value string) string {
	lower := strings.ToLower(value)
	cut := len(value)
	for _, marker := range featuredMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return normalizeTextForMatch(strings.TrimSpace(value[:cut]))
}

func normalizeTextForMatch(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func legacyPathKey(trackPath string) string {
	return strings.ToLower(trackPath)
}
