// Package audiosink abstracts audio output behind a capability set the
// playback supervisor drives: play, gapless crossfade, transport
// control, and volume/loudness handling (§4.1).
package audiosink

import "time"

// Sink is the capability surface the auto-advance supervisor and the
// UI transport controls drive. Implementations must be safe for
// concurrent use from one playback goroutine and one control goroutine.
type Sink interface {
	// Play starts playback of path from the beginning, replacing
	// whatever was previously loaded.
	Play(path string) error

	// QueueCrossfade begins decoding path and cross-fades into it over
	// the sink's configured crossfade duration, ending playback of the
	// current track. A CrossfadeSeconds of 0 behaves like an immediate
	// cut to the new track.
	QueueCrossfade(path string) error

	Pause()
	Resume()
	Stop()

	Position() time.Duration
	Duration() time.Duration
	IsPaused() bool
	IsFinished() bool

	Volume() float64
	SetVolume(v float64)

	SetLoudnessNormalization(enabled bool)
	SetCrossfadeSeconds(seconds uint16)
	CrossfadeSeconds() uint16

	// OutputDevices lists the selectable output devices, and
	// SetOutputDevice switches to one of them. Both are best-effort:
	// a Sink that cannot enumerate devices returns an empty list, and
	// one that cannot switch devices returns an error from
	// SetOutputDevice.
	OutputDevices() []string
	SetOutputDevice(name string) error
}
