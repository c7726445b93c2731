package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tunetui/tunetui/internal/audiosink"
	"github.com/tunetui/tunetui/internal/model"
	"github.com/tunetui/tunetui/internal/playback"
)

func newTestCore(t *testing.T, trackCount int) *playback.Core {
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
	return playback.NewFromPersisted(state)
}

func TestTickDoesNothingBeforeAnyTrackStarts(t *testing.T) {
	core := newTestCore(t, 2)
	sink := audiosink.NewNullSink()
	sup := New(core, sink)

	sup.Tick()
	if sup.CurrentPath() != "" {
		t.Errorf("CurrentPath = %q, want empty", sup.CurrentPath())
	}
}

func TestTickAdvancesWhenSinkFinishes(t *testing.T) {
	core := newTestCore(t, 2)
	sink := audiosink.NewNullSink()
	sup := New(core, sink)

	first, ok := core.NextTrackPath()
	if !ok {
		t.Fatal("expected a first track")
	}
	if err := sup.PlayPath(first); err != nil {
		t.Fatal(err)
	}

	sink.SetFinished()
	sup.Tick()

	if sup.CurrentPath() == first || sup.CurrentPath() == "" {
		t.Fatalf("expected advance past %q, got %q", first, sup.CurrentPath())
	}
}

func TestTickStopsAtEndOfQueue(t *testing.T) {
	core := newTestCore(t, 1)
	sink := audiosink.NewNullSink()
	sup := New(core, sink)

	first, ok := core.NextTrackPath()
	if !ok {
		t.Fatal("expected a track")
	}
	if err := sup.PlayPath(first); err != nil {
		t.Fatal(err)
	}

	sink.SetFinished()
	sup.Tick()

	if sup.CurrentPath() != "" {
		t.Errorf("CurrentPath = %q, want empty after queue end", sup.CurrentPath())
	}
	if !sink.Stopped {
		t.Error("expected sink.Stop to have been called")
	}
}

func TestTickDoesNothingWhilePaused(t *testing.T) {
	core := newTestCore(t, 2)
	sink := audiosink.NewNullSink()
	sup := New(core, sink)

	first, _ := core.NextTrackPath()
	_ = sup.PlayPath(first)
	sink.Pause()
	sink.SetFinished()

	sup.Tick()

	if sup.CurrentPath() != first {
		t.Errorf("CurrentPath changed while paused: got %q, want %q", sup.CurrentPath(), first)
	}
}

func TestTickTriggersCrossfadeWithinTailWindow(t *testing.T) {
	core := newTestCore(t, 2)
	sink := audiosink.NewNullSink()
	sup := New(core, sink)

	first, _ := core.NextTrackPath()
	_ = sup.PlayPath(first)

	sink.SetCrossfadeSeconds(5)
	sink.FakeDuration = 3 * time.Minute
	sink.FakePosition = sink.FakeDuration - 3*time.Second

	sup.Tick()

	if len(sink.CrossfadeCalls) != 1 {
		t.Fatalf("CrossfadeCalls = %v, want exactly one queued crossfade", sink.CrossfadeCalls)
	}
	if sup.CurrentPath() != first {
		t.Errorf("CurrentPath should stay %q until NotifyCrossfadeComplete, got %q", first, sup.CurrentPath())
	}
}

// fakeStreamer records RequestTrackStream calls instead of contacting
// any real peer.
type fakeStreamer struct {
	requested []string
}

func (f *fakeStreamer) RequestTrackStream(path string) {
	f.requested = append(f.requested, path)
}

func TestTickParksAdvanceAndRequestsStreamWhenNextTrackMissingLocally(t *testing.T) {
	core := newTestCore(t, 2)
	sink := audiosink.NewNullSink()
	sup := New(core, sink)
	streamer := &fakeStreamer{}
	sup.SetStreamer(streamer)

	first, _ := core.NextTrackPath()
	_ = sup.PlayPath(first)

	// Learn which path Tick's own NextTrackPath() call would advance to,
	// then remove that file and rewind the queue pointer so Tick sees
	// the same next track again, this time missing from local disk.
	second, ok := core.NextTrackPath()
	if !ok {
		t.Fatal("expected a second track")
	}
	if err := os.Remove(second); err != nil {
		t.Fatal(err)
	}
	core.CurrentQueueIndex--

	sink.SetFinished()
	sup.Tick()

	if len(streamer.requested) != 1 || streamer.requested[0] != second {
		t.Fatalf("requested = %v, want exactly [%q]", streamer.requested, second)
	}
	if len(sink.PlayCalls) != 1 || sink.PlayCalls[0] != first {
		t.Fatalf("sink.Play should not have been called again while parked, got %v", sink.PlayCalls)
	}
	if sup.CurrentPath() != first {
		t.Fatalf("CurrentPath = %q, want unchanged %q while parked", sup.CurrentPath(), first)
	}

	// A second Tick before the stream lands must not re-request or
	// otherwise touch the sink.
	sup.Tick()
	if len(streamer.requested) != 1 {
		t.Fatalf("requested = %v, want no repeat request while still parked", streamer.requested)
	}
}

func TestNotifyStreamReadyResumesParkedAdvanceWithCachePath(t *testing.T) {
	core := newTestCore(t, 2)
	sink := audiosink.NewNullSink()
	sup := New(core, sink)
	streamer := &fakeStreamer{}
	sup.SetStreamer(streamer)

	first, _ := core.NextTrackPath()
	_ = sup.PlayPath(first)

	second, ok := core.NextTrackPath()
	if !ok {
		t.Fatal("expected a second track")
	}
	if err := os.Remove(second); err != nil {
		t.Fatal(err)
	}
	core.CurrentQueueIndex--

	sink.SetFinished()
	sup.Tick()

	cachePath := filepath.Join(t.TempDir(), "cached-download.mp3")
	if err := os.WriteFile(cachePath, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	sup.NotifyStreamReady(second, cachePath)

	if len(sink.PlayCalls) != 2 || sink.PlayCalls[1] != cachePath {
		t.Fatalf("PlayCalls = %v, want exactly [%q %q]", sink.PlayCalls, first, cachePath)
	}
	if sup.CurrentPath() != second {
		t.Fatalf("CurrentPath = %q, want the logical path %q", sup.CurrentPath(), second)
	}

	// A stream landing for a path the supervisor isn't waiting on is ignored.
	sup.NotifyStreamReady("/some/other/stale/request.mp3", cachePath)
	if len(sink.PlayCalls) != 2 {
		t.Fatalf("PlayCalls = %v, want stale NotifyStreamReady to be a no-op", sink.PlayCalls)
	}
}

func TestNotifyCrossfadeCompleteCommitsPendingTrack(t *testing.T) {
	core := newTestCore(t, 2)
	sink := audiosink.NewNullSink()
	sup := New(core, sink)

	first, _ := core.NextTrackPath()
	_ = sup.PlayPath(first)

	sink.SetCrossfadeSeconds(5)
	sink.FakeDuration = 3 * time.Minute
	sink.FakePosition = sink.FakeDuration - 1*time.Second
	sup.Tick()

	sup.NotifyCrossfadeComplete()
	if sup.CurrentPath() == first || sup.CurrentPath() == "" {
		t.Errorf("expected crossfade target committed as current, got %q", sup.CurrentPath())
	}
}
