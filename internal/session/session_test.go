package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostSessionStartsInCollaborativeLosslessMode(t *testing.T) {
	s := Host("alice")
	require.Equal(t, ModeCollaborative, s.Mode)
	require.Equal(t, QualityLossless, s.Quality)
	require.Len(t, s.RoomCode, 6)
	local := s.LocalParticipant()
	require.NotNil(t, local)
	require.True(t, local.IsHost)
	require.True(t, local.IsLocal)
}

func TestJoinUsesUppercasedTrimmedRoomCode(t *testing.T) {
	s := Join("  abcdef  ", "bob")
	require.Equal(t, "ABCDEF", s.RoomCode)
	local := s.LocalParticipant()
	require.NotNil(t, local)
	require.False(t, local.IsHost)
}

func TestHostOnlyBlocksNonHostLocalControl(t *testing.T) {
	s := Join("ABCDEF", "bob")
	s.Mode = ModeHostOnly
	require.False(t, s.CanLocalControlPlayback())

	s.Mode = ModeCollaborative
	require.True(t, s.CanLocalControlPlayback())

	host := Host("alice")
	host.Mode = ModeHostOnly
	require.True(t, host.CanLocalControlPlayback())
}

func TestEffectiveDelayUsesPingWhenAutoEnabled(t *testing.T) {
	p := Participant{PingMS: 30, ManualExtraDelayMS: 10, AutoPingDelay: true}
	require.Equal(t, uint16(40), p.EffectiveDelayMS())

	p.AutoPingDelay = false
	require.Equal(t, uint16(10), p.EffectiveDelayMS())
}

func TestEffectiveDelaySaturatesInsteadOfOverflowing(t *testing.T) {
	p := Participant{PingMS: 60000, ManualExtraDelayMS: 60000, AutoPingDelay: true}
	require.Equal(t, uint16(0xFFFF), p.EffectiveDelayMS())
}

func TestAdjustLocalManualDelayClampsToUint16Range(t *testing.T) {
	s := Host("alice")
	s.AdjustLocalManualDelay(-100)
	require.Equal(t, uint16(0), s.LocalParticipant().ManualExtraDelayMS)

	s.AdjustLocalManualDelay(30000)
	s.AdjustLocalManualDelay(30000)
	s.AdjustLocalManualDelay(30000)
	require.Equal(t, uint16(0xFFFF), s.LocalParticipant().ManualExtraDelayMS)
}

func TestPushSharedTrackBoundsQueueAt512(t *testing.T) {
	s := Host("alice")
	for i := 0; i < 520; i++ {
		s.PushSharedTrack("/nonexistent/track.mp3", "Track", "alice")
	}
	require.Len(t, s.SharedQueue, maxSharedQueueItems)
}

func TestPushSharedTrackClassifiesDeliveryByLocalExistence(t *testing.T) {
	s := Host("alice")
	s.PushSharedTrack(t.TempDir(), "A directory exists so os.Stat succeeds", "alice")
	require.Equal(t, DeliveryPreferLocalWithStreamFallback, s.SharedQueue[0].Delivery)

	s.PushSharedTrack("/definitely/does/not/exist.mp3", "Missing", "bob")
	require.Equal(t, DeliveryHostStreamOnly, s.SharedQueue[1].Delivery)
}

func TestPushSharedTrackRecordsOwnerNickname(t *testing.T) {
	s := Host("alice")
	s.PushSharedTrack("/definitely/does/not/exist.mp3", "Missing", "bob")
	require.Equal(t, "bob", s.SharedQueue[0].OwnerNickname)
}

func TestRemoveParticipant(t *testing.T) {
	s := Host("alice")
	s.Participants = append(s.Participants, Participant{Nickname: "bob"})
	require.True(t, s.RemoveParticipant("bob"))
	require.Len(t, s.Participants, 1)
	require.False(t, s.RemoveParticipant("bob"))
}

func TestToggleModeAndCycleQuality(t *testing.T) {
	s := Host("alice")
	s.ToggleMode()
	require.Equal(t, ModeHostOnly, s.Mode)
	s.ToggleMode()
	require.Equal(t, ModeCollaborative, s.Mode)

	s.CycleQuality()
	require.Equal(t, QualityBalanced, s.Quality)
	s.CycleQuality()
	require.Equal(t, QualityLossless, s.Quality)
}
