package stats

import (
	"os"
	"path/filepath"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestRecordListenSkipsShortUntrackedListens(t *testing.T) {
	s := NewStore()
	s.RecordListen(ListenSessionRecord{
		TrackPath:       "/music/a.mp3",
		Title:           "A",
		ListenedSeconds: 5,
	})
	if len(s.Events) != 0 {
		t.Fatalf("expected short listen to be dropped, got %d events", len(s.Events))
	}
}

func TestRecordListenCountsPlayAtThirtySeconds(t *testing.T) {
	s := NewStore()
	s.RecordListen(ListenSessionRecord{
		TrackPath:       "/music/a.mp3",
		Title:           "A",
		Artist:          strPtr("Artist"),
		ListenedSeconds: 30,
	})
	key := metadataTrackKey(strPtr("Artist"), "A")
	totals := s.TrackTotals[key]
	if totals.PlayCount != 1 {
		t.Errorf("PlayCount = %d, want 1", totals.PlayCount)
	}
	if totals.ListenSeconds != 30 {
		t.Errorf("ListenSeconds = %d, want 30", totals.ListenSeconds)
	}
}

func TestRecordListenShortTrackOnlyCountsOnCompletion(t *testing.T) {
	s := NewStore()
	dur := uint32(20)
	s.RecordListen(ListenSessionRecord{
		TrackPath:       "/music/short.mp3",
		Title:           "Short",
		Artist:          strPtr("Artist"),
		ListenedSeconds: 15,
		DurationSeconds: &dur,
		Completed:       true,
		AllowShortListen: true,
	})
	key := metadataTrackKey(strPtr("Artist"), "Short")
	if s.TrackTotals[key].PlayCount != 1 {
		t.Errorf("expected completed short track to count as a play")
	}
}

func TestRecordListenAllowShortListenStillRecordsEventWithoutPlayCount(t *testing.T) {
	s := NewStore()
	s.RecordListen(ListenSessionRecord{
		TrackPath:        "/music/a.mp3",
		Title:            "A",
		ListenedSeconds:  5,
		AllowShortListen: true,
	})
	if len(s.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(s.Events))
	}
	if s.Events[0].CountedPlay {
		t.Error("5-second listen should not count as a play")
	}
}

func TestRecordListenBoundsEventLogAtMaxEvents(t *testing.T) {
	s := NewStore()
	for i := 0; i < maxEvents+10; i++ {
		s.RecordListen(ListenSessionRecord{
			TrackPath:        "/music/a.mp3",
			Title:            "A",
			ListenedSeconds:  1,
			AllowShortListen: true,
		})
	}
	if len(s.Events) != maxEvents {
		t.Fatalf("Events length = %d, want %d", len(s.Events), maxEvents)
	}
}

func TestRecordListenMapsProviderTrackIDToMetadataKey(t *testing.T) {
	s := NewStore()
	providerID := "  Spotify:123  "
	s.RecordListen(ListenSessionRecord{
		TrackPath:       "/music/a.mp3",
		Title:           "A",
		Artist:          strPtr("Artist"),
		ListenedSeconds: 30,
		ProviderTrackID: &providerID,
	})
	mapped, ok := s.ProviderTrackKeyMap["spotify:123"]
	if !ok {
		t.Fatal("expected normalized provider id to be recorded in ProviderTrackKeyMap")
	}
	if mapped != metadataTrackKey(strPtr("Artist"), "A") {
		t.Errorf("mapped key = %q, want metadata key", mapped)
	}
}

func TestSaveLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := NewStore()
	s.RecordListen(ListenSessionRecord{
		TrackPath:       "/music/a.mp3",
		Title:           "A",
		Artist:          strPtr("Artist"),
		ListenedSeconds: 45,
	})

	if err := Save(dir, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Events) != 1 {
		t.Fatalf("loaded Events length = %d, want 1", len(loaded.Events))
	}
	if loaded.SchemaVersion != statsSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", loaded.SchemaVersion, statsSchemaVersion)
	}
}

func TestSaveWritesBackupOfPreviousFile(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, NewStore()); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := Save(dir, NewStore()); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "stats.json.bak")); err != nil {
		t.Errorf("expected stats.json.bak to exist after second Save: %v", err)
	}
}

func TestLoadMissingFileReturnsFreshStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.TrackTotals) != 0 || len(s.Events) != 0 {
		t.Error("expected a fresh store for a missing stats.json")
	}
}
