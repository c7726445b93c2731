// Package session implements the OnlineSession room model: the
// replicated state a host and its peers share over the wire protocol
// in internal/wire (§5).
package session

import (
	"math/rand"
	"os"
	"strings"
)

const (
	roomCodeLen         = 6
	maxSharedQueueItems = 512
	roomCodeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// RoomMode controls who may issue transport commands.
type RoomMode int

const (
	ModeCollaborative RoomMode = iota
	ModeHostOnly
)

func (m RoomMode) Toggle() RoomMode {
	if m == ModeCollaborative {
		return ModeHostOnly
	}
	return ModeCollaborative
}

func (m RoomMode) Label() string {
	if m == ModeHostOnly {
		return "Host-only DJ"
	}
	return "Collaborative"
}

// StreamQuality is the relay's transcode/passthrough preference.
type StreamQuality int

const (
	QualityLossless StreamQuality = iota
	QualityBalanced
)

func (q StreamQuality) Next() StreamQuality {
	if q == QualityLossless {
		return QualityBalanced
	}
	return QualityLossless
}

func (q StreamQuality) Label() string {
	if q == QualityBalanced {
		return "Balanced"
	}
	return "Lossless"
}

// QueueDelivery records whether a shared queue item is expected to
// resolve locally on a peer, or must be streamed from the host.
type QueueDelivery int

const (
	DeliveryPreferLocalWithStreamFallback QueueDelivery = iota
	DeliveryHostStreamOnly
)

func (d QueueDelivery) Label() string {
	if d == DeliveryHostStreamOnly {
		return "Host stream"
	}
	return "Local+stream fallback"
}

// SharedQueueItem is one entry in the room's replicated queue.
// OwnerNickname is whoever shared it, the participant serveStream
// forwards a HostStreamOnly request to when the host's own disk
// doesn't have the file (§4.5.4).
type SharedQueueItem struct {
	Path          string        `json:"path"`
	Title         string        `json:"title"`
	Delivery      QueueDelivery `json:"delivery"`
	OwnerNickname string        `json:"owner_nickname,omitempty"`
}

// Participant is one member of a room, host or peer.
type Participant struct {
	Nickname           string `json:"nickname"`
	IsLocal            bool   `json:"is_local"`
	IsHost             bool   `json:"is_host"`
	PingMS             uint16 `json:"ping_ms"`
	ManualExtraDelayMS uint16 `json:"manual_extra_delay_ms"`
	AutoPingDelay      bool   `json:"auto_ping_delay"`
}

// EffectiveDelayMS is the delay applied to this participant's playback
// scheduling: auto mode adds ping to the manual offset, manual mode
// uses the offset alone.
func (p Participant) EffectiveDelayMS() uint16 {
	if p.AutoPingDelay {
		return saturatingAddU16(p.PingMS, p.ManualExtraDelayMS)
	}
	return p.ManualExtraDelayMS
}

func saturatingAddU16(a, b uint16) uint16 {
	sum := uint32(a) + uint32(b)
	if sum > 0xFFFF {
		return 0xFFFF
	}
	return uint16(sum)
}

// TransportCommandKind tags the TransportCommand variant.
type TransportCommandKind int

const (
	TransportSetPaused TransportCommandKind = iota
	TransportPlayTrack
	TransportSetPlaybackState
)

// TransportCommand is a playback directive issued by whoever currently
// holds control, relayed to every participant with a monotonic seq.
// Title/Artist/Album/ProviderID are only meaningful on PlayTrack: they
// let a peer without the track in its own library display now-playing
// metadata before (or instead of) resolving the file itself.
type TransportCommand struct {
	Kind       TransportCommandKind `json:"kind"`
	Paused     bool                 `json:"paused,omitempty"`
	Path       string               `json:"path,omitempty"`
	PositionMS uint64               `json:"position_ms,omitempty"`
	Title      string               `json:"title,omitempty"`
	Artist     string               `json:"artist,omitempty"`
	Album      string               `json:"album,omitempty"`
	ProviderID string               `json:"provider_id,omitempty"`
}

// TransportEnvelope wraps a TransportCommand with host-assigned
// ordering and attribution. Only the host dispatch loop assigns Seq.
type TransportEnvelope struct {
	Seq            uint64           `json:"seq"`
	OriginNickname string           `json:"origin_nickname"`
	Command        TransportCommand `json:"command"`
}

// Session is the replicated room state: room code, mode, quality,
// participant roster, shared queue, and the last transport command
// broadcast by the host.
type Session struct {
	RoomCode        string             `json:"room_code"`
	Mode            RoomMode           `json:"mode"`
	Quality         StreamQuality      `json:"quality"`
	Participants    []Participant      `json:"participants"`
	SharedQueue     []SharedQueueItem  `json:"shared_queue"`
	LastSyncDriftMS int32              `json:"last_sync_drift_ms"`
	LastTransport   *TransportEnvelope `json:"last_transport,omitempty"`
}

// Host creates a new session as its own host, seeded with a fresh room code.
func Host(localNickname string) *Session {
	return &Session{
		RoomCode: generateRoomCode(),
		Mode:     ModeCollaborative,
		Quality:  QualityLossless,
		Participants: []Participant{{
			Nickname:      normalizedNickname(localNickname),
			IsLocal:       true,
			IsHost:        true,
			PingMS:        18,
			AutoPingDelay: true,
		}},
	}
}

// Join creates a session representing this process as a non-host
// participant of roomCode; an empty roomCode generates a fresh one
// (used only by tests — real joins always carry a code from an invite).
func Join(roomCode, localNickname string) *Session {
	code := strings.ToUpper(strings.TrimSpace(roomCode))
	if code == "" {
		code = generateRoomCode()
	}
	return &Session{
		RoomCode: code,
		Mode:     ModeCollaborative,
		Quality:  QualityLossless,
		Participants: []Participant{{
			Nickname:      normalizedNickname(localNickname),
			IsLocal:       true,
			IsHost:        false,
			PingMS:        42,
			AutoPingDelay: true,
		}},
	}
}

// LocalParticipant returns this process's own roster entry.
func (s *Session) LocalParticipant() *Participant {
	for i := range s.Participants {
		if s.Participants[i].IsLocal {
			return &s.Participants[i]
		}
	}
	return nil
}

// CanLocalControlPlayback reports whether the local participant may
// issue transport commands: always true in Collaborative mode, only
// the host in HostOnly mode.
func (s *Session) CanLocalControlPlayback() bool {
	local := s.LocalParticipant()
	if local == nil {
		return false
	}
	return s.Mode == ModeCollaborative || local.IsHost
}

func (s *Session) ToggleMode()    { s.Mode = s.Mode.Toggle() }
func (s *Session) CycleQuality()  { s.Quality = s.Quality.Next() }

func (s *Session) ToggleLocalAutoDelay() {
	if local := s.LocalParticipant(); local != nil {
		local.AutoPingDelay = !local.AutoPingDelay
	}
}

// AdjustLocalManualDelay clamps the local participant's manual delay
// offset to [0, 65535] after applying deltaMS.
func (s *Session) AdjustLocalManualDelay(deltaMS int16) {
	local := s.LocalParticipant()
	if local == nil {
		return
	}
	current := int32(local.ManualExtraDelayMS) + int32(deltaMS)
	if current < 0 {
		current = 0
	}
	if current > 0xFFFF {
		current = 0xFFFF
	}
	local.ManualExtraDelayMS = uint16(current)
}

// PushSharedTrack appends an item to the shared queue, classifying its
// delivery by local file existence on the host, recording ownerNickname
// so a later HostStreamOnly request can be forwarded to whoever
// actually holds the file, and trims from the front once the queue
// exceeds maxSharedQueueItems.
func (s *Session) PushSharedTrack(path, title, ownerNickname string) {
	delivery := DeliveryHostStreamOnly
	if _, err := os.Stat(path); err == nil {
		delivery = DeliveryPreferLocalWithStreamFallback
	}
	s.SharedQueue = append(s.SharedQueue, SharedQueueItem{Path: path, Title: title, Delivery: delivery, OwnerNickname: ownerNickname})
	if len(s.SharedQueue) > maxSharedQueueItems {
		remove := len(s.SharedQueue) - maxSharedQueueItems
		s.SharedQueue = s.SharedQueue[remove:]
	}
}

// RemoveParticipant drops the participant with the given nickname, if present.
func (s *Session) RemoveParticipant(nickname string) bool {
	for i, p := range s.Participants {
		if p.Nickname == nickname {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return true
		}
	}
	return false
}

func normalizedNickname(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "you"
	}
	return trimmed
}

func generateRoomCode() string {
	out := make([]byte, roomCodeLen)
	for i := range out {
		out[i] = roomCodeAlphabet[rand.Intn(len(roomCodeAlphabet))]
	}
	return string(out)
}
