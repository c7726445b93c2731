package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tunetui/tunetui/internal/netclient"
	"github.com/tunetui/tunetui/internal/session"
	"github.com/tunetui/tunetui/internal/wire"
)

// streamFetcher pulls shared-queue tracks this peer doesn't hold
// locally from the host, over the same connection the session syncs
// ride on (§4.5.4). Each in-flight transfer is keyed by a fresh
// request ID so interleaved chunk/end/error frames from concurrent
// requests never get mixed up.
type streamFetcher struct {
	dir        string
	client     *netclient.Client
	pending    map[string]*os.File
	localPath  map[string]string
	sourcePath map[string]string
	requested  map[string]bool
}

func newStreamFetcher(client *netclient.Client) *streamFetcher {
	dir, err := os.MkdirTemp("", "tunetui-stream-*")
	if err != nil {
		log.Printf("[STREAM] could not create cache dir: %v, streamed tracks will be skipped", err)
		dir = ""
	}
	return &streamFetcher{
		dir:        dir,
		client:     client,
		pending:    make(map[string]*os.File),
		localPath:  make(map[string]string),
		sourcePath: make(map[string]string),
		requested:  make(map[string]bool),
	}
}

// RequestMissing asks the host to stream any shared-queue item marked
// DeliveryHostStreamOnly (the host's own disk did not have the file
// when it was queued, so its bytes come from the track's owner through
// the host) that hasn't already been requested this session.
func (f *streamFetcher) RequestMissing(items []session.SharedQueueItem) {
	for _, item := range items {
		if item.Delivery != session.DeliveryHostStreamOnly {
			continue
		}
		f.requestPath(item.Path)
	}
}

// RequestTrackStream implements supervisor.Streamer: the supervisor
// calls this when Tick finds the next queued track missing from local
// disk, asking the host to relay it from whoever owns it (§4.5.4,
// §4.6). A duplicate request for a path already in flight is a no-op.
func (f *streamFetcher) RequestTrackStream(path string) {
	f.requestPath(path)
}

// requestPath is the shared path both RequestMissing and
// RequestTrackStream funnel through: it dedupes by source path,
// allocates a fresh request ID and cache file, and records both
// directions of the path mapping so HandleEvent can hand back the
// original (possibly host-only) path alongside the local cache path.
func (f *streamFetcher) requestPath(path string) {
	if f.dir == "" {
		return
	}
	if f.requested[path] {
		return
	}
	f.requested[path] = true

	requestID := uuid.NewString()
	localPath := filepath.Join(f.dir, requestID+filepath.Ext(path))
	f.localPath[requestID] = localPath
	f.sourcePath[requestID] = path
	f.client.RequestStream(requestID, path)
}

// HandleEvent folds a stream chunk/end/error frame into the in-flight
// transfer it belongs to, returning the original source path and the
// finished file's local cache path once a transfer completes
// successfully.
func (f *streamFetcher) HandleEvent(ev netclient.NetworkEvent) (sourcePath, completedPath string, ok bool) {
	switch {
	case ev.StreamChunk != nil:
		f.appendChunk(*ev.StreamChunk)
	case ev.StreamEnd != nil:
		return f.finish(*ev.StreamEnd)
	case ev.StreamError != nil:
		f.abort(*ev.StreamError)
	}
	return "", "", false
}

func (f *streamFetcher) appendChunk(chunk wire.StreamChunk) {
	file, err := f.fileFor(chunk.RequestID)
	if err != nil {
		log.Printf("[STREAM] %v", err)
		return
	}
	if _, err := file.Write(chunk.Data); err != nil {
		log.Printf("[STREAM] write chunk %d for request %s: %v", chunk.Sequence, chunk.RequestID, err)
	}
}

func (f *streamFetcher) finish(end wire.StreamEnd) (string, string, bool) {
	file, ok := f.pending[end.RequestID]
	if !ok {
		return "", "", false
	}
	delete(f.pending, end.RequestID)
	file.Close()
	return f.sourcePath[end.RequestID], f.localPath[end.RequestID], true
}

func (f *streamFetcher) abort(streamErr wire.StreamError) {
	log.Printf("[STREAM] request %s failed: %s", streamErr.RequestID, streamErr.Reason)
	if file, ok := f.pending[streamErr.RequestID]; ok {
		delete(f.pending, streamErr.RequestID)
		file.Close()
		os.Remove(f.localPath[streamErr.RequestID])
	}
}

func (f *streamFetcher) fileFor(requestID string) (*os.File, error) {
	if existing, ok := f.pending[requestID]; ok {
		return existing, nil
	}
	path, ok := f.localPath[requestID]
	if !ok {
		return nil, fmt.Errorf("chunk for unknown request %s", requestID)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create stream cache file: %w", err)
	}
	f.pending[requestID] = file
	return file, nil
}
