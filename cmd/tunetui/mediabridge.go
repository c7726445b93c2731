package main

import (
	"log"

	"github.com/tunetui/tunetui/internal/audiosink"
	"github.com/tunetui/tunetui/internal/media"
	"github.com/tunetui/tunetui/internal/model"
	"github.com/tunetui/tunetui/internal/playback"
	"github.com/tunetui/tunetui/internal/supervisor"
)

// mediaBridge turns OS media-key commands into calls on the playback
// core, sink, and supervisor, and feeds metadata/state back the other
// way. It is the only thing in this repo that imports both
// internal/media and internal/playback; media itself stays generic.
type mediaBridge struct {
	core *playback.Core
	sink audiosink.Sink
	sup  *supervisor.Supervisor
}

func newMediaBridge(core *playback.Core, sink audiosink.Sink, sup *supervisor.Supervisor) *mediaBridge {
	return &mediaBridge{core: core, sink: sink, sup: sup}
}

func (b *mediaBridge) OnCommand(cmd media.Command, data interface{}) error {
	switch cmd {
	case media.CmdPlay:
		if b.sink.IsPaused() {
			b.sink.Resume()
		}
	case media.CmdPause:
		b.sink.Pause()
	case media.CmdPlayPause:
		if b.sink.IsPaused() {
			b.sink.Resume()
		} else {
			b.sink.Pause()
		}
	case media.CmdStop:
		b.sink.Stop()
	case media.CmdNext:
		if path, ok := b.core.NextTrackPath(); ok {
			return b.sup.PlayPath(path)
		}
	case media.CmdPrevious:
		if path, ok := b.core.PrevTrackPath(); ok {
			return b.sup.PlayPath(path)
		}
	case media.CmdSeek, media.CmdSetShuffle, media.CmdSetLoopStatus:
		log.Printf("[MEDIA] %s not supported by the audio sink, ignoring", cmd)
	}
	return nil
}

// pushNowPlaying reports the supervisor's current track and the sink's
// playback state to the OS media session.
func pushNowPlaying(sess media.Session, core *playback.Core, sink audiosink.Sink, sup *supervisor.Supervisor) {
	path := sup.CurrentPath()
	if path == "" {
		sess.UpdatePlaybackState(media.StateStopped, 0)
		return
	}

	if track, ok := core.TrackByPath(path); ok {
		if err := sess.UpdateMetadata(media.TrackMetadata(track, sink.Duration())); err != nil {
			log.Printf("[MEDIA] metadata update failed: %v", err)
		}
	}

	state := media.StatePlaying
	if sink.IsPaused() {
		state = media.StatePaused
	}
	if err := sess.UpdatePlaybackState(state, sink.Position()); err != nil {
		log.Printf("[MEDIA] playback state update failed: %v", err)
	}

	if err := sess.UpdateShuffle(core.Mode == model.ModeShuffle); err != nil {
		log.Printf("[MEDIA] shuffle update failed: %v", err)
	}
	if err := sess.UpdateLoopStatus(media.LoopStatusForMode(core.Mode)); err != nil {
		log.Printf("[MEDIA] loop status update failed: %v", err)
	}
	canNext, canPrev := transportCapabilities(core)
	if err := sess.UpdateCapabilities(canNext, canPrev); err != nil {
		log.Printf("[MEDIA] capabilities update failed: %v", err)
	}
}

// transportCapabilities reports whether a next/previous track exists
// at the queue's current position, without mutating it the way
// core.NextTrackPath/PrevTrackPath do.
func transportCapabilities(core *playback.Core) (canNext, canPrev bool) {
	n := len(core.Queue)
	if n == 0 || core.CurrentQueueIndex < 0 {
		return false, false
	}
	switch core.Mode {
	case model.ModeLoop, model.ModeLoopOne, model.ModeShuffle:
		return n > 1, n > 1
	default:
		return core.CurrentQueueIndex < n-1, core.CurrentQueueIndex > 0
	}
}
