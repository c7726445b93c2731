// Package wire defines the line-framed JSON-over-TCP protocol spoken
// between a relay host and its peers (§5). Every message is a single
// JSON object terminated by '\n'; Codec handles the framing so callers
// only deal with typed Go values.
package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tunetui/tunetui/internal/session"
)

// ClientMessageKind discriminates ClientMessage payloads.
type ClientMessageKind string

const (
	ClientHello         ClientMessageKind = "hello"
	ClientAction        ClientMessageKind = "action"
	ClientStreamRequest ClientMessageKind = "stream_request"
	ClientStreamChunk   ClientMessageKind = "stream_chunk"
	ClientStreamEnd     ClientMessageKind = "stream_end"
	ClientStreamError   ClientMessageKind = "stream_error"
)

// ClientMessage is sent peer -> host. StreamChunk/StreamEnd/StreamError
// carry the bytes of a track the sending peer owns, answering a
// StreamRequestForward the host relayed to it on behalf of another
// peer (§4.5.4) — the same frame kinds the host itself uses when it
// serves a track straight from its own disk.
type ClientMessage struct {
	Kind          ClientMessageKind `json:"kind"`
	Hello         *HelloPayload     `json:"hello,omitempty"`
	Action        *Action           `json:"action,omitempty"`
	StreamRequest *StreamRequest    `json:"stream_request,omitempty"`
	StreamChunk   *StreamChunk      `json:"stream_chunk,omitempty"`
	StreamEnd     *StreamEnd        `json:"stream_end,omitempty"`
	StreamError   *StreamError      `json:"stream_error,omitempty"`
}

// HelloPayload is the handshake a connecting peer sends first.
type HelloPayload struct {
	RoomCode string  `json:"room_code"`
	Nickname string  `json:"nickname"`
	Password *string `json:"password,omitempty"`
}

// ServerMessageKind discriminates ServerMessage payloads.
type ServerMessageKind string

const (
	ServerHelloAck             ServerMessageKind = "hello_ack"
	ServerSession              ServerMessageKind = "session"
	ServerStatus               ServerMessageKind = "status"
	ServerStreamChunk          ServerMessageKind = "stream_chunk"
	ServerStreamEnd            ServerMessageKind = "stream_end"
	ServerStreamError          ServerMessageKind = "stream_error"
	ServerStreamRequestForward ServerMessageKind = "stream_request_forward"
)

// ServerMessage is sent host -> peer. StreamRequestForward asks an
// owning peer to become the uploader for a StreamRequest the host
// itself cannot satisfy from its own disk (§4.5.4 step 2); that peer
// answers with its own ClientStreamChunk/StreamEnd/StreamError frames,
// which the host relays back to the original requester unchanged.
type ServerMessage struct {
	Kind                 ServerMessageKind `json:"kind"`
	HelloAck             *HelloAckPayload  `json:"hello_ack,omitempty"`
	Session              *session.Session  `json:"session,omitempty"`
	Status               *string           `json:"status,omitempty"`
	StreamChunk          *StreamChunk      `json:"stream_chunk,omitempty"`
	StreamEnd            *StreamEnd        `json:"stream_end,omitempty"`
	StreamError          *StreamError      `json:"stream_error,omitempty"`
	StreamRequestForward *StreamRequest    `json:"stream_request_forward,omitempty"`
}

// HelloAckPayload answers a Hello: accepted carries the full session,
// rejected carries a human-readable reason.
type HelloAckPayload struct {
	Accepted bool             `json:"accepted"`
	Reason   string           `json:"reason,omitempty"`
	Session  *session.Session `json:"session,omitempty"`
}

// ActionKind discriminates Action payloads.
type ActionKind string

const (
	ActionSetMode     ActionKind = "set_mode"
	ActionSetQuality  ActionKind = "set_quality"
	ActionQueueAdd    ActionKind = "queue_add"
	ActionDelayUpdate ActionKind = "delay_update"
	ActionTransport   ActionKind = "transport"
)

// Action is a peer-issued directive the host folds into the session
// and re-broadcasts (§5.2).
type Action struct {
	Kind        ActionKind                 `json:"kind"`
	Mode        *session.RoomMode          `json:"mode,omitempty"`
	Quality     *session.StreamQuality     `json:"quality,omitempty"`
	QueueItem   *session.SharedQueueItem   `json:"queue_item,omitempty"`
	DelayUpdate *DelayUpdate               `json:"delay_update,omitempty"`
	Transport   *session.TransportEnvelope `json:"transport,omitempty"`
}

// DelayUpdate carries a participant's revised sync delay preference.
type DelayUpdate struct {
	ManualExtraDelayMS uint16 `json:"manual_extra_delay_ms"`
	AutoPingDelay      bool   `json:"auto_ping_delay"`
}

// StreamChunkLen is the chunk size both the host (serving its own
// files) and an owning peer (answering a forwarded request) read and
// send at a time.
const StreamChunkLen = 64 * 1024

// StreamRequest asks the host to relay the bytes of a track this peer
// does not hold locally (§4.5.4). The host serves it directly if the
// host's own disk has the file, or forwards the same RequestID/Path to
// the peer recorded as the track's owner otherwise. RequestID
// correlates the chunks and terminal frame that follow, end to end.
type StreamRequest struct {
	RequestID string `json:"request_id"`
	Path      string `json:"path"`
}

// StreamChunk is one fragment of a relayed track's bytes.
type StreamChunk struct {
	RequestID string `json:"request_id"`
	Sequence  uint64 `json:"sequence"`
	Data      []byte `json:"data"`
}

// StreamEnd marks the final chunk of a stream transfer.
type StreamEnd struct {
	RequestID   string `json:"request_id"`
	TotalChunks uint64 `json:"total_chunks"`
}

// StreamError aborts an in-flight stream transfer.
type StreamError struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

// Codec reads and writes newline-delimited JSON frames over a
// connection, mirroring the host/peer line protocol.
type Codec struct {
	r *bufio.Reader
	w io.Writer
}

// NewCodec wraps rw for framed JSON I/O.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{r: bufio.NewReader(rw), w: rw}
}

// ReadClientMessage blocks for the next '\n'-terminated ClientMessage.
func (c *Codec) ReadClientMessage() (ClientMessage, error) {
	var msg ClientMessage
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(line, &msg); err != nil {
		return msg, fmt.Errorf("decode client message: %w", err)
	}
	return msg, nil
}

// ReadServerMessage blocks for the next '\n'-terminated ServerMessage.
func (c *Codec) ReadServerMessage() (ServerMessage, error) {
	var msg ServerMessage
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(line, &msg); err != nil {
		return msg, fmt.Errorf("decode server message: %w", err)
	}
	return msg, nil
}

// WriteClientMessage serializes and flushes a ClientMessage.
func (c *Codec) WriteClientMessage(msg ClientMessage) error {
	return c.writeLine(msg)
}

// WriteServerMessage serializes and flushes a ServerMessage.
func (c *Codec) WriteServerMessage(msg ServerMessage) error {
	return c.writeLine(msg)
}

func (c *Codec) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	data = append(data, '\n')
	_, err = c.w.Write(data)
	return err
}
