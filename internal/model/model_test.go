package model

import "testing"

func TestPlaybackModeNextCyclesInOrder(t *testing.T) {
	seq := []PlaybackMode{ModeNormal, ModeShuffle, ModeLoop, ModeLoopOne, ModeNormal}
	mode := ModeNormal
	for i := 1; i < len(seq); i++ {
		mode = mode.Next()
		if mode != seq[i] {
			t.Fatalf("step %d: got %v, want %v", i, mode, seq[i])
		}
	}
}

func TestIsValidCrossfadeSeconds(t *testing.T) {
	for _, v := range CrossfadeSeconds {
		if !IsValidCrossfadeSeconds(v) {
			t.Errorf("expected %d to be valid", v)
		}
	}
	if IsValidCrossfadeSeconds(3) {
		t.Error("3 should not be a valid crossfade duration")
	}
}

func TestHasAudioExtension(t *testing.T) {
	cases := map[string]bool{
		"song.mp3":    true,
		"song.FLAC":   true,
		"song.m4a":    true,
		"readme.txt":  false,
		"noextension": false,
	}
	for path, want := range cases {
		if got := HasAudioExtension(path); got != want {
			t.Errorf("HasAudioExtension(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestPathEqualAndPathIsWithin(t *testing.T) {
	if !PathEqual("/music/a.mp3", "/music/a.mp3") {
		t.Error("identical paths should be equal")
	}
	if !PathIsWithin("/music/rock/song.mp3", "/music") {
		t.Error("expected descendant path to be within root")
	}
	if PathIsWithin("/music2/song.mp3", "/music") {
		t.Error("sibling directory sharing a prefix must not be considered within root")
	}
	if !PathIsWithin("/music", "/music") {
		t.Error("root should be within itself")
	}
}

func TestDefaultPersistedStateIsUsable(t *testing.T) {
	state := DefaultPersistedState()
	if state.Folders == nil || state.Playlists == nil {
		t.Error("default state should initialize empty, non-nil collections")
	}
	if state.PlaybackMode != ModeNormal {
		t.Errorf("default playback mode = %v, want Normal", state.PlaybackMode)
	}
	if !state.StatsEnabled {
		t.Error("stats should be enabled by default")
	}
}
