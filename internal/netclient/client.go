// Package netclient is the peer side of the wire protocol: connect,
// handshake, and run the read/write goroutines that turn a TCP
// connection into NetworkEvent/Action channels for the rest of the
// application (§5).
package netclient

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"github.com/tunetui/tunetui/internal/session"
	"github.com/tunetui/tunetui/internal/wire"
)

// NetworkEvent is something the client goroutine surfaces to the rest
// of the application.
type NetworkEvent struct {
	SessionSync *session.Session
	Status      string
	StreamChunk *wire.StreamChunk
	StreamEnd   *wire.StreamEnd
	StreamError *wire.StreamError
}

// Client is a connected peer's handle to the relay host.
type Client struct {
	conn  net.Conn
	codec *wire.Codec

	events chan NetworkEvent
	cmds   chan wire.ClientMessage
	done   chan struct{}
}

// Connect dials serverAddr, performs the Hello handshake, and starts
// the read/write goroutines. It returns once the host has accepted or
// rejected the Hello.
func Connect(serverAddr, roomCode, nickname string, password *string) (*Client, error) {
	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", serverAddr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	codec := wire.NewCodec(conn)
	if err := codec.WriteClientMessage(wire.ClientMessage{
		Kind:  wire.ClientHello,
		Hello: &wire.HelloPayload{RoomCode: roomCode, Nickname: nickname, Password: password},
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	ack, err := codec.ReadServerMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read hello ack: %w", err)
	}
	if ack.Kind != wire.ServerHelloAck || ack.HelloAck == nil {
		conn.Close()
		return nil, errors.New("invalid handshake response from server")
	}
	if !ack.HelloAck.Accepted {
		reason := ack.HelloAck.Reason
		if reason == "" {
			reason = "server rejected connection"
		}
		conn.Close()
		return nil, errors.New(reason)
	}

	c := &Client{
		conn:   conn,
		codec:  codec,
		events: make(chan NetworkEvent, 32),
		cmds:   make(chan wire.ClientMessage, 32),
		done:   make(chan struct{}),
	}

	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// Events returns the channel of session syncs, status lines, and
// stream frames read from the host.
func (c *Client) Events() <-chan NetworkEvent { return c.events }

// SendAction queues an action for transmission to the host.
func (c *Client) SendAction(action wire.Action) {
	c.enqueue(wire.ClientMessage{Kind: wire.ClientAction, Action: &action})
}

// RequestStream asks the host to relay path's bytes under requestID.
func (c *Client) RequestStream(requestID, path string) {
	c.enqueue(wire.ClientMessage{
		Kind:          wire.ClientStreamRequest,
		StreamRequest: &wire.StreamRequest{RequestID: requestID, Path: path},
	})
}

func (c *Client) enqueue(msg wire.ClientMessage) {
	select {
	case c.cmds <- msg:
	case <-c.done:
	}
}

// Shutdown closes the connection and stops both goroutines.
func (c *Client) Shutdown() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		msg, err := c.codec.ReadServerMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.emit(NetworkEvent{Status: "Disconnected from online host"})
			} else {
				c.emit(NetworkEvent{Status: fmt.Sprintf("Online socket read error: %v", err)})
			}
			return
		}
		switch msg.Kind {
		case wire.ServerSession:
			c.emit(NetworkEvent{SessionSync: msg.Session})
		case wire.ServerStatus:
			if msg.Status != nil {
				c.emit(NetworkEvent{Status: *msg.Status})
			}
		case wire.ServerStreamChunk:
			c.emit(NetworkEvent{StreamChunk: msg.StreamChunk})
		case wire.ServerStreamEnd:
			c.emit(NetworkEvent{StreamEnd: msg.StreamEnd})
		case wire.ServerStreamError:
			c.emit(NetworkEvent{StreamError: msg.StreamError})
		case wire.ServerStreamRequestForward:
			if msg.StreamRequestForward != nil {
				go c.serveOutgoingStream(*msg.StreamRequestForward)
			}
		case wire.ServerHelloAck:
			// only expected once, during Connect
		}
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.cmds:
			if err := c.codec.WriteClientMessage(msg); err != nil {
				c.emit(NetworkEvent{Status: fmt.Sprintf("Online send failed: %v", err)})
				return
			}
		}
	}
}

func (c *Client) emit(ev NetworkEvent) {
	select {
	case c.events <- ev:
	default:
		log.Printf("[CLIENT] dropping event, subscriber too slow")
	}
}

// serveOutgoingStream answers a host's StreamRequestForward: this peer
// was recorded as the owner of req.Path (§4.5.4 step 2), so it reads
// the file itself and sends the chunks back as ClientStreamChunk
// frames, terminated by ClientStreamEnd or ClientStreamError. The host
// relays these to whichever peer actually asked for the track.
func (c *Client) serveOutgoingStream(req wire.StreamRequest) {
	f, err := os.Open(req.Path)
	if err != nil {
		c.enqueue(wire.ClientMessage{Kind: wire.ClientStreamError, StreamError: &wire.StreamError{RequestID: req.RequestID, Reason: err.Error()}})
		return
	}
	defer f.Close()

	buf := make([]byte, wire.StreamChunkLen)
	var seq uint64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.enqueue(wire.ClientMessage{Kind: wire.ClientStreamChunk, StreamChunk: &wire.StreamChunk{RequestID: req.RequestID, Sequence: seq, Data: chunk}})
			seq++
		}
		if err == io.EOF {
			c.enqueue(wire.ClientMessage{Kind: wire.ClientStreamEnd, StreamEnd: &wire.StreamEnd{RequestID: req.RequestID, TotalChunks: seq}})
			return
		}
		if err != nil {
			c.enqueue(wire.ClientMessage{Kind: wire.ClientStreamError, StreamError: &wire.StreamError{RequestID: req.RequestID, Reason: err.Error()}})
			return
		}
	}
}
