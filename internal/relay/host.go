// Package relay implements the host side of the wire protocol: peer
// admission, action dispatch into the shared session, state
// broadcast, and byte-relay streaming for tracks a peer doesn't hold
// locally (§5, §4.5.4).
package relay

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tunetui/tunetui/internal/auth"
	"github.com/tunetui/tunetui/internal/session"
	"github.com/tunetui/tunetui/internal/wire"
)

const maxPeers = 8

// Event is a notification the host surfaces to its local UI: either a
// fresh session snapshot after some mutation, or a human-readable
// status line.
type Event struct {
	SessionSync *session.Session
	Status      string
}

type peerConn struct {
	id       uint32
	nickname string
	conn     net.Conn
	codec    *wire.Codec
	sendCh   chan wire.ServerMessage
	closed   atomic.Bool
}

func (p *peerConn) send(msg wire.ServerMessage) {
	if p.closed.Load() {
		return
	}
	select {
	case p.sendCh <- msg:
	default:
		// peer's outbound queue is saturated; drop it rather than block the host.
	}
}

func (p *peerConn) writerLoop() {
	for msg := range p.sendCh {
		if err := p.codec.WriteServerMessage(msg); err != nil {
			p.closed.Store(true)
			return
		}
	}
}

func (p *peerConn) close() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.sendCh)
		p.conn.Close()
	}
}

type inboundHello struct {
	peerID     uint32
	room       string
	nickname   string
	password   *string
	conn       net.Conn
	codec      *wire.Codec
	remoteAddr string
}

type inboundAction struct {
	peerID uint32
	action wire.Action
}

type inboundStream struct {
	peerID uint32
	req    wire.StreamRequest
}

// inboundStreamRelay is a stream frame sent peer -> host by whichever
// peer is answering a StreamRequestForward as the track's owner. Only
// one of chunk/end/err is set.
type inboundStreamRelay struct {
	peerID uint32
	chunk  *wire.StreamChunk
	end    *wire.StreamEnd
	err    *wire.StreamError
}

type inboundDisconnect struct {
	peerID uint32
}

type inboundReadError struct {
	peerID uint32
	err    error
}

// Host owns a listening socket, the authoritative session, and every
// accepted peer connection. All session mutation happens on a single
// dispatch goroutine, under mu, which also guards the session reads
// made from the stream-serving goroutines.
type Host struct {
	listener net.Listener

	expectedPassword string
	authMgr          *auth.Manager

	mu             sync.Mutex
	sess           *session.Session
	peers          map[uint32]*peerConn
	nextPeer       uint32
	pendingStreams map[string]uint32 // requestID -> requesting peer, while forwarded to an owner

	helloCh       chan inboundHello
	actionCh      chan inboundAction
	streamCh      chan inboundStream
	streamRelayCh chan inboundStreamRelay
	disconnectCh  chan inboundDisconnect
	readErrCh     chan inboundReadError
	localCh       chan wire.Action

	events chan Event
	done   chan struct{}
}

// NewHost binds bindAddr and starts the dispatch and accept loops. The
// session begins as its own host room (session.Host has already been
// called by the caller and is passed in).
func NewHost(bindAddr string, sess *session.Session, expectedPassword string) (*Host, error) {
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("bind online host at %s: %w", bindAddr, err)
	}

	h := &Host{
		listener:         listener,
		expectedPassword: expectedPassword,
		authMgr:          auth.NewManager(),
		sess:             sess,
		peers:            make(map[uint32]*peerConn),
		nextPeer:         1,
		pendingStreams:   make(map[string]uint32),
		helloCh:          make(chan inboundHello),
		actionCh:         make(chan inboundAction),
		streamCh:         make(chan inboundStream),
		streamRelayCh:    make(chan inboundStreamRelay),
		disconnectCh:     make(chan inboundDisconnect),
		readErrCh:        make(chan inboundReadError),
		localCh:          make(chan wire.Action, 16),
		events:           make(chan Event, 16),
		done:             make(chan struct{}),
	}

	go h.acceptLoop()
	go h.dispatchLoop()
	return h, nil
}

// Events returns the channel of session-sync/status notifications for
// the local UI to drain.
func (h *Host) Events() <-chan Event { return h.events }

// Addr returns the address the host actually bound, which may differ
// from the requested bindAddr when the caller asked for port 0.
func (h *Host) Addr() string { return h.listener.Addr().String() }

// SendLocalAction queues an action issued by the local (host-side) user.
func (h *Host) SendLocalAction(action wire.Action) {
	select {
	case h.localCh <- action:
	case <-h.done:
	}
}

// Shutdown stops accepting connections, tells every peer the session
// ended, and closes all sockets.
func (h *Host) Shutdown() {
	close(h.done)
	h.listener.Close()
	h.mu.Lock()
	status := "Host ended session"
	h.broadcastLocked(wire.ServerMessage{Kind: wire.ServerStatus, Status: &status})
	for _, p := range h.peers {
		p.close()
	}
	h.mu.Unlock()
}

func (h *Host) acceptLoop() {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			select {
			case <-h.done:
				return
			default:
				log.Printf("[RELAY] accept failed: %v", err)
				return
			}
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}

		h.mu.Lock()
		peerID := h.nextPeer
		h.nextPeer++
		h.mu.Unlock()

		go h.peerReader(peerID, conn)
	}
}

func (h *Host) peerReader(peerID uint32, conn net.Conn) {
	codec := wire.NewCodec(conn)

	first, err := codec.ReadClientMessage()
	if err != nil {
		h.readErrCh <- inboundReadError{peerID: peerID, err: err}
		return
	}
	if first.Kind != wire.ClientHello || first.Hello == nil {
		conn.Close()
		h.disconnectCh <- inboundDisconnect{peerID: peerID}
		return
	}

	select {
	case h.helloCh <- inboundHello{
		peerID:     peerID,
		room:       first.Hello.RoomCode,
		nickname:   first.Hello.Nickname,
		password:   first.Hello.Password,
		conn:       conn,
		codec:      codec,
		remoteAddr: conn.RemoteAddr().String(),
	}:
	case <-h.done:
		conn.Close()
		return
	}

	for {
		msg, err := codec.ReadClientMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.disconnectCh <- inboundDisconnect{peerID: peerID}
			} else {
				h.readErrCh <- inboundReadError{peerID: peerID, err: err}
			}
			return
		}
		switch msg.Kind {
		case wire.ClientAction:
			if msg.Action != nil {
				h.actionCh <- inboundAction{peerID: peerID, action: *msg.Action}
			}
		case wire.ClientStreamRequest:
			if msg.StreamRequest != nil {
				h.streamCh <- inboundStream{peerID: peerID, req: *msg.StreamRequest}
			}
		case wire.ClientStreamChunk:
			if msg.StreamChunk != nil {
				h.streamRelayCh <- inboundStreamRelay{peerID: peerID, chunk: msg.StreamChunk}
			}
		case wire.ClientStreamEnd:
			if msg.StreamEnd != nil {
				h.streamRelayCh <- inboundStreamRelay{peerID: peerID, end: msg.StreamEnd}
			}
		case wire.ClientStreamError:
			if msg.StreamError != nil {
				h.streamRelayCh <- inboundStreamRelay{peerID: peerID, err: msg.StreamError}
			}
		}
	}
}

func (h *Host) dispatchLoop() {
	for {
		select {
		case <-h.done:
			return

		case hello := <-h.helloCh:
			h.handleHello(hello)

		case action := <-h.actionCh:
			h.mu.Lock()
			peer := h.peers[action.peerID]
			origin := "peer"
			if peer != nil {
				origin = peer.nickname
			}
			applyActionToSession(h.sess, action.action, origin)
			h.broadcastStateLocked()
			h.emitSyncLocked()
			h.mu.Unlock()

		case stream := <-h.streamCh:
			go h.serveStream(stream.peerID, stream.req)

		case relay := <-h.streamRelayCh:
			h.handleStreamRelay(relay)

		case disc := <-h.disconnectCh:
			h.mu.Lock()
			if peer, ok := h.peers[disc.peerID]; ok {
				delete(h.peers, disc.peerID)
				h.sess.RemoveParticipant(peer.nickname)
				h.broadcastStateLocked()
				h.emitSyncLocked()
				peer.close()
			}
			h.mu.Unlock()

		case readErr := <-h.readErrCh:
			h.mu.Lock()
			if peer, ok := h.peers[readErr.peerID]; ok {
				delete(h.peers, readErr.peerID)
				peer.close()
			}
			h.mu.Unlock()
			h.emitStatus(fmt.Sprintf("peer read error: %v", readErr.err))

		case action := <-h.localCh:
			h.mu.Lock()
			origin := "host"
			if local := h.sess.LocalParticipant(); local != nil {
				origin = local.Nickname
			}
			applyActionToSession(h.sess, action, origin)
			h.broadcastStateLocked()
			h.emitSyncLocked()
			h.mu.Unlock()
		}
	}
}

// handleHello runs admission in this order: room code mismatch, then
// room full, then the per-address lockout, then bad password.
func (h *Host) handleHello(hello inboundHello) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if strings.ToUpper(hello.room) != h.sess.RoomCode {
		hello.codec.WriteServerMessage(rejectAck("room code mismatch"))
		hello.conn.Close()
		return
	}
	if len(h.peers)+1 > maxPeers {
		hello.codec.WriteServerMessage(rejectAck("room is full"))
		hello.conn.Close()
		return
	}
	if h.authMgr.IsLockedOut(hello.remoteAddr) {
		hello.codec.WriteServerMessage(rejectAck("too many failed attempts, try again later"))
		hello.conn.Close()
		return
	}

	expected := strings.TrimSpace(h.expectedPassword)
	given := ""
	if hello.password != nil {
		given = strings.TrimSpace(*hello.password)
	}
	if expected != given {
		h.authMgr.RecordAuthFailure(hello.remoteAddr)
		hello.codec.WriteServerMessage(rejectAck("invalid room password"))
		hello.conn.Close()
		return
	}
	h.authMgr.RecordAuthSuccess(hello.remoteAddr)

	if err := hello.codec.WriteServerMessage(wire.ServerMessage{
		Kind:     wire.ServerHelloAck,
		HelloAck: &wire.HelloAckPayload{Accepted: true, Session: h.sess},
	}); err != nil {
		hello.conn.Close()
		return
	}

	h.sess.Participants = append(h.sess.Participants, session.Participant{
		Nickname:      hello.nickname,
		IsLocal:       false,
		IsHost:        false,
		PingMS:        35,
		AutoPingDelay: true,
	})

	peer := &peerConn{id: hello.peerID, nickname: hello.nickname, conn: hello.conn, codec: hello.codec, sendCh: make(chan wire.ServerMessage, 32)}
	h.peers[hello.peerID] = peer
	go peer.writerLoop()

	h.broadcastStateLocked()
	h.emitSyncLocked()
}

func rejectAck(reason string) wire.ServerMessage {
	return wire.ServerMessage{Kind: wire.ServerHelloAck, HelloAck: &wire.HelloAckPayload{Accepted: false, Reason: reason}}
}

func (h *Host) broadcastStateLocked() {
	h.broadcastLocked(wire.ServerMessage{Kind: wire.ServerSession, Session: h.sess})
}

func (h *Host) broadcastLocked(msg wire.ServerMessage) {
	for _, peer := range h.peers {
		peer.send(msg)
	}
}

func (h *Host) emitSyncLocked() {
	snapshot := *h.sess
	select {
	case h.events <- Event{SessionSync: &snapshot}:
	default:
	}
}

func (h *Host) emitStatus(status string) {
	select {
	case h.events <- Event{Status: status}:
	default:
	}
}

// serveStream resolves req the way §4.5.4 describes: serve it straight
// from the host's own disk if the host has the file, otherwise forward
// the same request to whichever peer owns the track and let that
// peer's outbound ClientStreamChunk/StreamEnd/StreamError frames relay
// back through handleStreamRelay. This has no counterpart in the
// traversal this protocol was distilled from — the original host never
// streamed bytes, only JSON state — so it runs off the dispatch loop
// entirely, to keep the transfer from blocking control traffic.
func (h *Host) serveStream(peerID uint32, req wire.StreamRequest) {
	h.mu.Lock()
	requester := h.peers[peerID]
	h.mu.Unlock()
	if requester == nil {
		return
	}

	if f, err := os.Open(req.Path); err == nil {
		serveFileToPeer(requester, req, f)
		return
	}

	owner, ok := h.resolveStreamOwner(req.Path, peerID)
	if !ok {
		requester.send(wire.ServerMessage{Kind: wire.ServerStreamError, StreamError: &wire.StreamError{RequestID: req.RequestID, Reason: "track owner is not connected"}})
		return
	}

	h.mu.Lock()
	h.pendingStreams[req.RequestID] = peerID
	h.mu.Unlock()
	owner.send(wire.ServerMessage{Kind: wire.ServerStreamRequestForward, StreamRequestForward: &req})
}

// resolveStreamOwner looks up the connected peer recorded as the
// owner of the shared-queue item at path (§4.5.4 step 2). The
// requester is never treated as a valid owner of its own cache miss.
func (h *Host) resolveStreamOwner(path string, requesterID uint32) (*peerConn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ownerNickname string
	for _, item := range h.sess.SharedQueue {
		if item.Path == path {
			ownerNickname = item.OwnerNickname
			break
		}
	}
	if ownerNickname == "" {
		return nil, false
	}
	for id, p := range h.peers {
		if id != requesterID && p.nickname == ownerNickname {
			return p, true
		}
	}
	return nil, false
}

// handleStreamRelay forwards a stream frame an owning peer sent in
// answer to a StreamRequestForward back to the peer that originally
// asked for the track, translating the client-side frame kinds into
// the matching server-side ones unchanged.
func (h *Host) handleStreamRelay(r inboundStreamRelay) {
	var requestID string
	switch {
	case r.chunk != nil:
		requestID = r.chunk.RequestID
	case r.end != nil:
		requestID = r.end.RequestID
	case r.err != nil:
		requestID = r.err.RequestID
	default:
		return
	}

	h.mu.Lock()
	requesterID, ok := h.pendingStreams[requestID]
	if r.end != nil || r.err != nil {
		delete(h.pendingStreams, requestID)
	}
	requester := h.peers[requesterID]
	h.mu.Unlock()
	if !ok || requester == nil {
		return
	}

	switch {
	case r.chunk != nil:
		requester.send(wire.ServerMessage{Kind: wire.ServerStreamChunk, StreamChunk: r.chunk})
	case r.end != nil:
		requester.send(wire.ServerMessage{Kind: wire.ServerStreamEnd, StreamEnd: r.end})
	case r.err != nil:
		requester.send(wire.ServerMessage{Kind: wire.ServerStreamError, StreamError: r.err})
	}
}

// serveFileToPeer reads f in fixed-size chunks and sends them to peer,
// terminated by StreamEnd or StreamError. Used when the host itself
// holds the requested file; netclient.Client.serveOutgoingStream mirrors
// this loop for the case where an owning peer answers a forwarded request.
func serveFileToPeer(peer *peerConn, req wire.StreamRequest, f *os.File) {
	defer f.Close()

	buf := make([]byte, wire.StreamChunkLen)
	var seq uint64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			peer.send(wire.ServerMessage{Kind: wire.ServerStreamChunk, StreamChunk: &wire.StreamChunk{RequestID: req.RequestID, Sequence: seq, Data: chunk}})
			seq++
		}
		if err == io.EOF {
			peer.send(wire.ServerMessage{Kind: wire.ServerStreamEnd, StreamEnd: &wire.StreamEnd{RequestID: req.RequestID, TotalChunks: seq}})
			return
		}
		if err != nil {
			peer.send(wire.ServerMessage{Kind: wire.ServerStreamError, StreamError: &wire.StreamError{RequestID: req.RequestID, Reason: err.Error()}})
			return
		}
	}
}

// applyActionToSession folds a wire Action into the session,
// attributing it to originNickname and assigning the next transport
// seq when the action is a transport command.
func applyActionToSession(sess *session.Session, action wire.Action, originNickname string) {
	switch action.Kind {
	case wire.ActionSetMode:
		if action.Mode != nil {
			sess.Mode = *action.Mode
		}
	case wire.ActionSetQuality:
		if action.Quality != nil {
			sess.Quality = *action.Quality
		}
	case wire.ActionQueueAdd:
		if action.QueueItem != nil {
			owner := action.QueueItem.OwnerNickname
			if owner == "" {
				owner = originNickname
			}
			sess.PushSharedTrack(action.QueueItem.Path, action.QueueItem.Title, owner)
		}
	case wire.ActionDelayUpdate:
		if action.DelayUpdate != nil {
			target := originNickname
			found := false
			for i := range sess.Participants {
				if sess.Participants[i].Nickname == target {
					sess.Participants[i].ManualExtraDelayMS = action.DelayUpdate.ManualExtraDelayMS
					sess.Participants[i].AutoPingDelay = action.DelayUpdate.AutoPingDelay
					found = true
					break
				}
			}
			if !found {
				if local := sess.LocalParticipant(); local != nil {
					local.ManualExtraDelayMS = action.DelayUpdate.ManualExtraDelayMS
					local.AutoPingDelay = action.DelayUpdate.AutoPingDelay
				}
			}
		}
	case wire.ActionTransport:
		if action.Transport != nil {
			envelope := *action.Transport
			nextSeq := uint64(1)
			if sess.LastTransport != nil {
				nextSeq = sess.LastTransport.Seq + 1
			}
			envelope.Seq = nextSeq
			envelope.OriginNickname = originNickname
			sess.LastTransport = &envelope
		}
	}
}
