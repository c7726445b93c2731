package audiosink

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

const defaultSampleRate = beep.SampleRate(44100)

var (
	speakerOnce        sync.Once
	speakerInitErr     error
	globalSampleRate   beep.SampleRate
)

func initSpeaker(sr beep.SampleRate) error {
	speakerOnce.Do(func() {
		globalSampleRate = sr
		bufSize := sr.N(200 * time.Millisecond)
		speakerInitErr = speaker.Init(sr, bufSize)
		if speakerInitErr != nil {
			log.Printf("[AUDIO] speaker.Init failed: %v", speakerInitErr)
		} else {
			log.Printf("[AUDIO] speaker initialized at %d Hz, buffer %d", sr, bufSize)
		}
	})
	return speakerInitErr
}

// BeepSink is the real output implementation, backed by gopxl/beep.
// It keeps a single beep.Mixer alive for the process lifetime and
// swaps streamers in and out of it, so speaker.Play is only ever
// called once.
type BeepSink struct {
	mu sync.Mutex

	mixer *beep.Mixer

	format        beep.Format
	streamer      beep.StreamSeekCloser
	volumeEffect  *effects.Volume
	ctrl          *beep.Ctrl

	volume                float64
	loudnessNormalization bool
	crossfadeSeconds      uint16
	paused                bool
	finished              bool
	outputDevice          string
}

// NewBeepSink initializes the global speaker (idempotent across the
// process) and returns a ready Sink.
func NewBeepSink() (*BeepSink, error) {
	if err := initSpeaker(defaultSampleRate); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	s := &BeepSink{
		mixer:  &beep.Mixer{},
		volume: 1,
	}
	speaker.Play(s.mixer)
	return s, nil
}

func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".flac":
		return flac.Decode(f)
	case ".wav":
		return wav.Decode(f)
	case ".ogg", ".opus":
		return vorbis.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("unsupported extension: %s", path)
	}
}

func (s *BeepSink) mkVolume(streamer beep.Streamer) *effects.Volume {
	v := &effects.Volume{Streamer: streamer, Base: 2}
	if s.volume <= 0 {
		v.Silent = true
	} else {
		v.Volume = (s.volume - 1) * 5
	}
	return v
}

func (s *BeepSink) resampled(streamer beep.StreamSeekCloser, format beep.Format) beep.Streamer {
	if format.SampleRate == globalSampleRate {
		return streamer
	}
	return beep.Resample(4, format.SampleRate, globalSampleRate, streamer)
}

// Play replaces whatever is playing with path, starting at position 0.
func (s *BeepSink) Play(path string) error {
	streamer, format, err := decode(path)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	speaker.Lock()
	s.closeCurrentLocked()
	s.streamer = streamer
	s.format = format
	s.finished = false
	s.paused = false

	done := make(chan struct{})
	s.ctrl = &beep.Ctrl{Streamer: beep.Seq(s.resampled(streamer, format), beep.Callback(func() {
		close(done)
	})), Paused: false}
	s.volumeEffect = s.mkVolume(s.ctrl)
	s.mixer.Clear()
	s.mixer.Add(s.volumeEffect)
	speaker.Unlock()

	go func() {
		<-done
		s.mu.Lock()
		s.finished = true
		s.mu.Unlock()
	}()

	log.Printf("[AUDIO] playing %s (%d Hz, %d ch)", path, format.SampleRate, format.NumChannels)
	return nil
}

// QueueCrossfade decodes path and mixes it in alongside the current
// track with a linear gain ramp over CrossfadeSeconds, handing off
// fully to the new track once the ramp completes.
func (s *BeepSink) QueueCrossfade(path string) error {
	streamer, format, err := decode(path)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	fadeSeconds := s.crossfadeSeconds
	if fadeSeconds == 0 {
		return s.Play(path)
	}

	speaker.Lock()
	var outgoing beep.Streamer = beep.Silence(-1)
	if s.ctrl != nil {
		outgoing = s.ctrl
	}
	incoming := s.resampled(streamer, format)
	fader := &crossfadeStreamer{
		out:         outgoing,
		in:          incoming,
		fadeSamples: int(globalSampleRate) * int(fadeSeconds),
	}

	done := make(chan struct{})
	s.closeCurrentLocked()
	s.streamer = streamer
	s.format = format
	s.finished = false
	s.paused = false
	s.ctrl = &beep.Ctrl{Streamer: beep.Seq(fader, beep.Callback(func() { close(done) })), Paused: false}
	s.volumeEffect = s.mkVolume(s.ctrl)
	s.mixer.Clear()
	s.mixer.Add(s.volumeEffect)
	speaker.Unlock()

	go func() {
		<-done
		s.mu.Lock()
		s.finished = true
		s.mu.Unlock()
	}()

	log.Printf("[AUDIO] crossfading into %s over %ds", path, fadeSeconds)
	return nil
}

func (s *BeepSink) closeCurrentLocked() {
	if s.streamer != nil {
		s.streamer.Close()
	}
}

func (s *BeepSink) Pause() {
	speaker.Lock()
	defer speaker.Unlock()
	if s.ctrl != nil {
		s.ctrl.Paused = true
	}
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *BeepSink) Resume() {
	speaker.Lock()
	defer speaker.Unlock()
	if s.ctrl != nil {
		s.ctrl.Paused = false
	}
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *BeepSink) Stop() {
	speaker.Lock()
	s.closeCurrentLocked()
	s.streamer = nil
	s.mixer.Clear()
	speaker.Unlock()

	s.mu.Lock()
	s.paused = false
	s.finished = true
	s.mu.Unlock()
}

func (s *BeepSink) Position() time.Duration {
	speaker.Lock()
	defer speaker.Unlock()
	if s.streamer == nil {
		return 0
	}
	return s.format.SampleRate.D(s.streamer.Position())
}

func (s *BeepSink) Duration() time.Duration {
	speaker.Lock()
	defer speaker.Unlock()
	if s.streamer == nil {
		return 0
	}
	return s.format.SampleRate.D(s.streamer.Len())
}

func (s *BeepSink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *BeepSink) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *BeepSink) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *BeepSink) SetVolume(v float64) {
	speaker.Lock()
	defer speaker.Unlock()
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
	if s.volumeEffect != nil {
		if v <= 0 {
			s.volumeEffect.Silent = true
		} else {
			s.volumeEffect.Silent = false
			s.volumeEffect.Volume = (v - 1) * 5
		}
	}
}

// SetLoudnessNormalization is best-effort: beep has no built-in ReplayGain
// support, so this only records the preference for the caller's own
// normalization pass (e.g. a future per-track gain tag lookup).
func (s *BeepSink) SetLoudnessNormalization(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loudnessNormalization = enabled
}

func (s *BeepSink) SetCrossfadeSeconds(seconds uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crossfadeSeconds = seconds
}

func (s *BeepSink) CrossfadeSeconds() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crossfadeSeconds
}

// OutputDevices returns an empty list: beep/speaker binds to the
// system default device with no enumeration API.
func (s *BeepSink) OutputDevices() []string {
	return nil
}

func (s *BeepSink) SetOutputDevice(name string) error {
	return fmt.Errorf("output device selection not supported")
}

// crossfadeStreamer linearly ramps from "out" to "in" over fadeSamples
// frames, then streams "in" alone for the remainder.
type crossfadeStreamer struct {
	out, in     beep.Streamer
	fadeSamples int
	pos         int
	outBuf      [512][2]float64
	inBuf       [512][2]float64
}

func (c *crossfadeStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if c.pos >= c.fadeSamples {
		return c.in.Stream(samples)
	}

	remaining := len(samples)
	filled := 0
	for filled < remaining {
		chunk := remaining - filled
		if chunk > len(c.outBuf) {
			chunk = len(c.outBuf)
		}
		if c.pos+chunk > c.fadeSamples {
			chunk = c.fadeSamples - c.pos
		}
		if chunk <= 0 {
			break
		}

		outN, outOK := c.out.Stream(c.outBuf[:chunk])
		for i := outN; i < chunk; i++ {
			c.outBuf[i] = [2]float64{}
		}
		inN, inOK := c.in.Stream(c.inBuf[:chunk])
		n := inN

		for i := 0; i < n; i++ {
			t := float64(c.pos+i) / float64(c.fadeSamples)
			samples[filled+i][0] = c.outBuf[i][0]*(1-t) + c.inBuf[i][0]*t
			samples[filled+i][1] = c.outBuf[i][1]*(1-t) + c.inBuf[i][1]*t
		}

		filled += n
		c.pos += n
		if n == 0 || (!outOK && !inOK) {
			break
		}
		if !outOK {
			// outgoing track ended mid-fade: treat remaining ramp as fully incoming.
			c.pos = c.fadeSamples
		}
	}

	if filled == 0 {
		return 0, false
	}
	return filled, true
}

func (c *crossfadeStreamer) Err() error {
	if err := c.out.Err(); err != nil {
		return err
	}
	return c.in.Err()
}
