// Package supervisor drives auto-advance: deciding, once per tick,
// whether the current track should hand off to the next one, and
// whether that handoff is a crossfade or a hard cut (§4.6).
package supervisor

import (
	"os"
	"time"

	"github.com/tunetui/tunetui/internal/audiosink"
	"github.com/tunetui/tunetui/internal/playback"
)

// Streamer requests that the bytes of a track missing from local disk
// be fetched from whoever in the room owns it (§4.5.4), asynchronously.
// Tick uses one, if wired, to defer an advance instead of handing the
// sink a path that doesn't exist yet.
type Streamer interface {
	RequestTrackStream(path string)
}

// Supervisor ticks the playback core and audio sink together,
// triggering crossfades or immediate next-track cuts as the current
// track nears its end or finishes outright.
type Supervisor struct {
	core     *playback.Core
	sink     audiosink.Sink
	streamer Streamer

	currentPath         string
	crossfadeQueuedPath string

	pendingStreamPath      string
	pendingStreamCrossfade bool
}

// New wires a Supervisor to the given core and sink.
func New(core *playback.Core, sink audiosink.Sink) *Supervisor {
	return &Supervisor{core: core, sink: sink}
}

// SetStreamer wires the dependency Tick uses to request bytes for a
// track absent from local disk (§4.6's "else request stream" branch).
// Callers with no online session leave this unset; Tick then falls
// back to handing the sink the bare path, as it always used to.
func (s *Supervisor) SetStreamer(streamer Streamer) {
	s.streamer = streamer
}

// Tick runs one auto-advance decision. Call it on a steady interval
// (e.g. from the same loop that redraws the UI).
func (s *Supervisor) Tick() {
	if s.pendingStreamPath != "" {
		return
	}
	if s.currentPath == "" || s.sink.IsPaused() {
		return
	}

	crossfadeTriggered := s.shouldTriggerCrossfadeAdvance()
	if crossfadeTriggered && s.crossfadeQueuedPath != "" {
		return
	}

	if !s.sink.IsFinished() && !crossfadeTriggered {
		return
	}

	path, ok := s.core.NextTrackPath()
	if !ok {
		if s.sink.IsFinished() {
			s.sink.Stop()
			s.currentPath = ""
			s.core.SetStatus("Reached end of queue")
		}
		return
	}

	if s.requestStreamIfMissing(path, crossfadeTriggered) {
		return
	}

	if crossfadeTriggered {
		if err := s.sink.QueueCrossfade(path); err != nil {
			s.core.SetStatus("Crossfade failed: %v", err)
			return
		}
		s.crossfadeQueuedPath = path
	} else {
		if err := s.sink.Play(path); err != nil {
			s.core.SetStatus("Playback failed: %v", err)
			return
		}
		s.currentPath = path
		s.crossfadeQueuedPath = ""
	}
}

// requestStreamIfMissing reports whether path is missing from local
// disk and, if a Streamer is wired, parks the pending advance and asks
// for it; the caller should return without touching the sink. Tick
// resumes the advance from NotifyStreamReady once the bytes land.
func (s *Supervisor) requestStreamIfMissing(path string, crossfade bool) bool {
	if s.streamer == nil {
		return false
	}
	if _, err := os.Stat(path); err == nil {
		return false
	}
	s.pendingStreamPath = path
	s.pendingStreamCrossfade = crossfade
	s.core.SetStatus("Waiting to stream %s from its owner", path)
	s.streamer.RequestTrackStream(path)
	return true
}

// NotifyStreamReady resumes an advance Tick parked on a stream
// request: cachePath is where the downloaded bytes landed, while path
// (the logical, possibly host-only track) keeps standing in for
// CurrentPath/TrackByPath lookups. A path that doesn't match what Tick
// is waiting on is ignored — it belongs to a transfer that timed out
// or was superseded by a later queue change.
func (s *Supervisor) NotifyStreamReady(path, cachePath string) {
	if path == "" || path != s.pendingStreamPath {
		return
	}
	crossfade := s.pendingStreamCrossfade
	s.pendingStreamPath = ""
	s.pendingStreamCrossfade = false

	if crossfade {
		if err := s.sink.QueueCrossfade(cachePath); err != nil {
			s.core.SetStatus("Crossfade failed: %v", err)
			return
		}
		s.crossfadeQueuedPath = path
		return
	}
	if err := s.sink.Play(cachePath); err != nil {
		s.core.SetStatus("Playback failed: %v", err)
		return
	}
	s.currentPath = path
	s.crossfadeQueuedPath = ""
}

// NotifyCrossfadeComplete should be called once the crossfaded-in
// track becomes the one actually advancing the queue (e.g. when the
// sink reports its position has reset to the new track). It commits
// the pending crossfade so the next Tick treats it as current.
func (s *Supervisor) NotifyCrossfadeComplete() {
	if s.crossfadeQueuedPath != "" {
		s.currentPath = s.crossfadeQueuedPath
		s.crossfadeQueuedPath = ""
	}
}

// PlayPath starts path immediately, outside the auto-advance decision
// (used for explicit user-driven track selection).
func (s *Supervisor) PlayPath(path string) error {
	if err := s.sink.Play(path); err != nil {
		return err
	}
	s.currentPath = path
	s.crossfadeQueuedPath = ""
	return nil
}

// CurrentPath is the track the supervisor currently believes is playing.
func (s *Supervisor) CurrentPath() string { return s.currentPath }

// shouldTriggerCrossfadeAdvance reports whether the sink has entered
// the tail window within which the next track should start fading in.
func (s *Supervisor) shouldTriggerCrossfadeAdvance() bool {
	seconds := s.sink.CrossfadeSeconds()
	if seconds == 0 {
		return false
	}

	position := s.sink.Position()
	duration := s.sink.Duration()
	if duration <= position {
		return false
	}

	remaining := duration - position
	return remaining <= time.Duration(seconds)*time.Second
}
