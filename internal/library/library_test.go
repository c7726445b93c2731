package library

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanFindsAudioFilesAndSkipsOthers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Intro.mp3"), []byte("not really mp3 data"))
	writeFile(t, filepath.Join(dir, "sub", "Deep Cut.flac"), []byte("not really flac data"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("hello"))

	idx := Scan([]string{dir})
	if len(idx.Tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(idx.Tracks))
	}
	for _, track := range idx.Tracks {
		if track.Title == "" {
			t.Errorf("track %q has empty title", track.Path)
		}
	}
}

func TestScanDeduplicatesByNormalizedPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	writeFile(t, path, []byte("x"))

	idx := Scan([]string{dir, dir})
	if len(idx.Tracks) != 1 {
		t.Fatalf("got %d tracks scanning the same folder twice, want 1", len(idx.Tracks))
	}
}

func TestScanSkipsUnreadableFolderWithoutFailing(t *testing.T) {
	idx := Scan([]string{filepath.Join(t.TempDir(), "does-not-exist")})
	if len(idx.Tracks) != 0 {
		t.Fatalf("got %d tracks from a missing folder, want 0", len(idx.Tracks))
	}
}

func TestLookupReturnsIndexOrNegativeOne(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	writeFile(t, path, []byte("x"))

	idx := Scan([]string{dir})
	if got := idx.Lookup(path); got != 0 {
		t.Errorf("Lookup(%q) = %d, want 0", path, got)
	}
	if got := idx.Lookup(filepath.Join(dir, "missing.mp3")); got != -1 {
		t.Errorf("Lookup for missing file = %d, want -1", got)
	}
}

func TestLookupOnNilIndex(t *testing.T) {
	var idx *Index
	if got := idx.Lookup("anything.mp3"); got != -1 {
		t.Errorf("Lookup on nil index = %d, want -1", got)
	}
}

func TestSyntheticTrackUsesFileStem(t *testing.T) {
	track := SyntheticTrack("/music/Some Song.mp3")
	if track.Title != "Some Song" {
		t.Errorf("title = %q, want %q", track.Title, "Some Song")
	}
	if track.Path != "/music/Some Song.mp3" {
		t.Errorf("path = %q", track.Path)
	}
}
