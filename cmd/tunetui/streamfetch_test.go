package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tunetui/tunetui/internal/netclient"
	"github.com/tunetui/tunetui/internal/relay"
	"github.com/tunetui/tunetui/internal/session"
	"github.com/tunetui/tunetui/internal/wire"
)

func newFetcherForTest(t *testing.T) *streamFetcher {
	t.Helper()
	return &streamFetcher{
		dir:        t.TempDir(),
		pending:    make(map[string]*os.File),
		localPath:  make(map[string]string),
		sourcePath: make(map[string]string),
		requested:  make(map[string]bool),
	}
}

func TestAppendChunkThenFinishWritesCompleteFile(t *testing.T) {
	f := newFetcherForTest(t)
	const requestID = "req-1"
	f.localPath[requestID] = filepath.Join(f.dir, requestID+".mp3")

	_, _, done := f.HandleEvent(netclient.NetworkEvent{StreamChunk: &wire.StreamChunk{RequestID: requestID, Sequence: 0, Data: []byte("hello ")}})
	require.False(t, done)
	_, _, done = f.HandleEvent(netclient.NetworkEvent{StreamChunk: &wire.StreamChunk{RequestID: requestID, Sequence: 1, Data: []byte("world")}})
	require.False(t, done)

	_, localPath, done := f.HandleEvent(netclient.NetworkEvent{StreamEnd: &wire.StreamEnd{RequestID: requestID, TotalChunks: 2}})
	require.True(t, done)

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestStreamErrorRemovesPartialFile(t *testing.T) {
	f := newFetcherForTest(t)
	const requestID = "req-2"
	f.localPath[requestID] = filepath.Join(f.dir, requestID+".mp3")

	f.HandleEvent(netclient.NetworkEvent{StreamChunk: &wire.StreamChunk{RequestID: requestID, Data: []byte("partial")}})
	f.HandleEvent(netclient.NetworkEvent{StreamError: &wire.StreamError{RequestID: requestID, Reason: "disk full on host"}})

	_, err := os.Stat(f.localPath[requestID])
	require.True(t, os.IsNotExist(err))
}

func TestHandleEventReturnsOriginalSourcePathAlongsideCachePath(t *testing.T) {
	f := newFetcherForTest(t)
	const requestID = "req-3"
	f.localPath[requestID] = filepath.Join(f.dir, requestID+".mp3")
	f.sourcePath[requestID] = "/host/only/rare-b-side.flac"

	f.HandleEvent(netclient.NetworkEvent{StreamChunk: &wire.StreamChunk{RequestID: requestID, Data: []byte("x")}})
	sourcePath, localPath, done := f.HandleEvent(netclient.NetworkEvent{StreamEnd: &wire.StreamEnd{RequestID: requestID, TotalChunks: 1}})

	require.True(t, done)
	require.Equal(t, "/host/only/rare-b-side.flac", sourcePath)
	require.Equal(t, f.localPath[requestID], localPath)
}

func TestRequestTrackStreamDedupesAgainstAnEarlierRequest(t *testing.T) {
	f := newFetcherForTest(t)
	missing := "/host/only/missing-next-track.mp3"
	f.requested[missing] = true

	// The supervisor asking for a path the fetcher already has in
	// flight (e.g. via RequestMissing) must not spawn a second request.
	f.RequestTrackStream(missing)
	require.Len(t, f.requested, 1)
}

func TestRequestMissingSkipsLocallyAvailableItems(t *testing.T) {
	f := newFetcherForTest(t)
	items := []session.SharedQueueItem{
		{Path: "/local/track.mp3", Delivery: session.DeliveryPreferLocalWithStreamFallback},
	}
	f.RequestMissing(items)
	require.Empty(t, f.requested)
}

func TestRequestMissingDoesNotRequestTheSamePathTwice(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(source, []byte("abcdefghijklmnop"), 0o644))

	sess := session.Host("alice")
	h, err := relay.NewHost("127.0.0.1:0", sess, "")
	require.NoError(t, err)
	defer h.Shutdown()

	empty := ""
	client, err := netclient.Connect(h.Addr(), sess.RoomCode, "bob", &empty)
	require.NoError(t, err)
	defer client.Shutdown()

	select {
	case <-h.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for host sync after connect")
	}

	f := newStreamFetcher(client)
	items := []session.SharedQueueItem{{Path: source, Delivery: session.DeliveryHostStreamOnly}}
	f.RequestMissing(items)
	f.RequestMissing(items)
	require.Len(t, f.requested, 1)
}
