package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tunetui/tunetui/internal/session"
)

func TestCodecRoundTripsClientHello(t *testing.T) {
	buf := &bytes.Buffer{}
	codec := NewCodec(buf)

	password := "secret"
	sent := ClientMessage{
		Kind:  ClientHello,
		Hello: &HelloPayload{RoomCode: "ABCDEF", Nickname: "alice", Password: &password},
	}
	require.NoError(t, codec.WriteClientMessage(sent))

	got, err := codec.ReadClientMessage()
	require.NoError(t, err)
	require.Equal(t, ClientHello, got.Kind)
	require.NotNil(t, got.Hello)
	require.Equal(t, "ABCDEF", got.Hello.RoomCode)
	require.Equal(t, "alice", got.Hello.Nickname)
	require.Equal(t, password, *got.Hello.Password)
}

func TestCodecRoundTripsServerSessionSnapshot(t *testing.T) {
	buf := &bytes.Buffer{}
	codec := NewCodec(buf)

	sess := session.Host("alice")
	sent := ServerMessage{Kind: ServerSession, Session: sess}
	require.NoError(t, codec.WriteServerMessage(sent))

	got, err := codec.ReadServerMessage()
	require.NoError(t, err)
	require.Equal(t, ServerSession, got.Kind)
	require.NotNil(t, got.Session)
	require.Equal(t, sess.RoomCode, got.Session.RoomCode)
}

func TestCodecFramesMultipleMessagesOnOneStream(t *testing.T) {
	buf := &bytes.Buffer{}
	codec := NewCodec(buf)

	status1 := "first"
	status2 := "second"
	require.NoError(t, codec.WriteServerMessage(ServerMessage{Kind: ServerStatus, Status: &status1}))
	require.NoError(t, codec.WriteServerMessage(ServerMessage{Kind: ServerStatus, Status: &status2}))

	first, err := codec.ReadServerMessage()
	require.NoError(t, err)
	require.Equal(t, status1, *first.Status)

	second, err := codec.ReadServerMessage()
	require.NoError(t, err)
	require.Equal(t, status2, *second.Status)
}

func TestCodecRejectsMalformedJSON(t *testing.T) {
	buf := bytes.NewBufferString("{not json}\n")
	codec := NewCodec(buf)
	_, err := codec.ReadServerMessage()
	require.Error(t, err)
}

func TestStreamRequestRoundTrips(t *testing.T) {
	buf := &bytes.Buffer{}
	codec := NewCodec(buf)

	sent := ClientMessage{
		Kind:          ClientStreamRequest,
		StreamRequest: &StreamRequest{RequestID: "req-1", Path: "/music/a.mp3"},
	}
	require.NoError(t, codec.WriteClientMessage(sent))

	got, err := codec.ReadClientMessage()
	require.NoError(t, err)
	require.Equal(t, "req-1", got.StreamRequest.RequestID)
	require.Equal(t, "/music/a.mp3", got.StreamRequest.Path)
}
