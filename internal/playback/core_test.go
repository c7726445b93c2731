package playback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tunetui/tunetui/internal/model"
)

func newTestCore(t *testing.T, trackCount int) *Core {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < trackCount; i++ {
		path := filepath.Join(dir, string(rune('a'+i))+".mp3")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	state := model.DefaultPersistedState()
	state.Folders = []string{dir}
	return NewFromPersisted(state)
}

func TestNewFromPersistedBuildsMainQueue(t *testing.T) {
	c := newTestCore(t, 3)
	if len(c.Queue) != 3 {
		t.Fatalf("queue length = %d, want 3", len(c.Queue))
	}
	if c.CurrentQueueIndex != -1 {
		t.Errorf("CurrentQueueIndex = %d, want -1", c.CurrentQueueIndex)
	}
}

func TestNextTrackPathEveryQueueIndexIsValid(t *testing.T) {
	c := newTestCore(t, 4)
	for i := 0; i < 10; i++ {
		_, ok := c.NextTrackPath()
		if !ok {
			break
		}
		for _, trackIdx := range c.Queue {
			if trackIdx < 0 || trackIdx >= len(c.tracks) {
				t.Fatalf("queue contains out-of-range track index %d", trackIdx)
			}
		}
		if c.CurrentQueueIndex < 0 || c.CurrentQueueIndex >= len(c.Queue) {
			t.Fatalf("CurrentQueueIndex %d out of [0,%d)", c.CurrentQueueIndex, len(c.Queue))
		}
	}
}

func TestNormalModeStopsAtQueueEnd(t *testing.T) {
	c := newTestCore(t, 2)
	if _, ok := c.NextTrackPath(); !ok {
		t.Fatal("expected first NextTrackPath to succeed")
	}
	if _, ok := c.NextTrackPath(); !ok {
		t.Fatal("expected second NextTrackPath to succeed")
	}
	if _, ok := c.NextTrackPath(); ok {
		t.Fatal("Normal mode should not wrap past the end of the queue")
	}
}

func TestLoopModeWrapsAround(t *testing.T) {
	c := newTestCore(t, 2)
	c.Mode = model.ModeLoop
	first, _ := c.NextTrackPath()
	_, _ = c.NextTrackPath()
	wrapped, ok := c.NextTrackPath()
	if !ok {
		t.Fatal("Loop mode should wrap around")
	}
	if wrapped != first {
		t.Errorf("wrapped track = %q, want first track %q", wrapped, first)
	}
}

func TestLoopOneModeRepeatsCurrentTrack(t *testing.T) {
	c := newTestCore(t, 3)
	first, _ := c.NextTrackPath()
	c.Mode = model.ModeLoopOne
	for i := 0; i < 3; i++ {
		path, ok := c.NextTrackPath()
		if !ok || path != first {
			t.Fatalf("LoopOne should keep returning %q, got %q (ok=%v)", first, path, ok)
		}
	}
}

func TestShuffleModeVisitsEachIndexExactlyOncePerBag(t *testing.T) {
	c := newTestCore(t, 5)
	c.Mode = model.ModeShuffle
	c.ResetMainQueue()

	seen := map[int]bool{}
	for i := 0; i < len(c.Queue); i++ {
		if _, ok := c.NextTrackPath(); !ok {
			t.Fatalf("iteration %d: NextTrackPath failed", i)
		}
		if seen[c.CurrentQueueIndex] {
			t.Fatalf("index %d visited twice within one shuffle bag", c.CurrentQueueIndex)
		}
		seen[c.CurrentQueueIndex] = true
	}
	if len(seen) != len(c.Queue) {
		t.Fatalf("visited %d distinct indices, want %d", len(seen), len(c.Queue))
	}
}

func TestPrevTrackPathMirrorsNext(t *testing.T) {
	c := newTestCore(t, 3)
	_, _ = c.NextTrackPath()
	second, _ := c.NextTrackPath()
	third, _ := c.NextTrackPath()
	if third == second {
		t.Fatal("expected distinct second and third tracks")
	}
	back, ok := c.PrevTrackPath()
	if !ok || back != second {
		t.Fatalf("PrevTrackPath = %q (ok=%v), want %q", back, ok, second)
	}
}

func TestCycleModeAdvancesThroughAllFourModes(t *testing.T) {
	c := newTestCore(t, 1)
	modes := []model.PlaybackMode{model.ModeShuffle, model.ModeLoop, model.ModeLoopOne, model.ModeNormal}
	for _, want := range modes {
		c.CycleMode()
		if c.Mode != want {
			t.Fatalf("Mode = %v, want %v", c.Mode, want)
		}
	}
}

func TestTrackByPathFindsScannedTrack(t *testing.T) {
	c := newTestCore(t, 1)
	path, ok := c.NextTrackPath()
	if !ok {
		t.Fatal("expected a track")
	}
	track, ok := c.TrackByPath(path)
	if !ok {
		t.Fatalf("TrackByPath(%q) not found", path)
	}
	if track.Path != path {
		t.Errorf("track.Path = %q, want %q", track.Path, path)
	}
}

func TestTrackByPathMissingReturnsFalse(t *testing.T) {
	c := newTestCore(t, 1)
	if _, ok := c.TrackByPath("/nowhere/missing.mp3"); ok {
		t.Error("expected TrackByPath to report not found")
	}
}
