package audiosink

import "time"

// NullSink is an in-memory Sink used by tests (including the
// supervisor's own unit tests) and by cmd/tunetui as the silent
// fallback when no audio device opens: it tracks state transitions
// without touching any real audio device.
type NullSink struct {
	CurrentPath           string
	Paused                bool
	Finished              bool
	Stopped               bool
	PlayCalls             []string
	CrossfadeCalls        []string
	VolumeValue           float64
	LoudnessNormalization bool
	FakeCrossfadeSeconds  uint16
	FakeDuration          time.Duration
	FakePosition          time.Duration
	OutputDevice          string
	devices               []string
}

// NewNullSink returns a NullSink with a sensible default volume.
func NewNullSink() *NullSink {
	return &NullSink{VolumeValue: 1, FakeDuration: 3 * time.Minute}
}

func (s *NullSink) Play(path string) error {
	s.CurrentPath = path
	s.Paused = false
	s.Finished = false
	s.Stopped = false
	s.FakePosition = 0
	s.PlayCalls = append(s.PlayCalls, path)
	return nil
}

func (s *NullSink) QueueCrossfade(path string) error {
	s.CurrentPath = path
	s.Paused = false
	s.Finished = false
	s.Stopped = false
	s.FakePosition = 0
	s.CrossfadeCalls = append(s.CrossfadeCalls, path)
	return nil
}

func (s *NullSink) Pause()  { s.Paused = true }
func (s *NullSink) Resume() { s.Paused = false }
func (s *NullSink) Stop() {
	s.Stopped = true
	s.CurrentPath = ""
	s.Finished = true
}

func (s *NullSink) Position() time.Duration { return s.FakePosition }
func (s *NullSink) Duration() time.Duration { return s.FakeDuration }
func (s *NullSink) IsPaused() bool          { return s.Paused }
func (s *NullSink) IsFinished() bool        { return s.Finished }

func (s *NullSink) Volume() float64     { return s.VolumeValue }
func (s *NullSink) SetVolume(v float64) { s.VolumeValue = v }

func (s *NullSink) SetLoudnessNormalization(enabled bool) { s.LoudnessNormalization = enabled }
func (s *NullSink) SetCrossfadeSeconds(seconds uint16)     { s.FakeCrossfadeSeconds = seconds }
func (s *NullSink) CrossfadeSeconds() uint16               { return s.FakeCrossfadeSeconds }

var _ Sink = (*NullSink)(nil)

func (s *NullSink) OutputDevices() []string { return s.devices }
func (s *NullSink) SetOutputDevice(name string) error {
	s.OutputDevice = name
	return nil
}

// SetFinished lets a test simulate natural track completion.
func (s *NullSink) SetFinished() { s.Finished = true }
