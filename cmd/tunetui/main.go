// Package main is the entry point for tunetui: a collaborative
// music-listening core that loads a local library, plays tracks
// through the audio sink, and optionally hosts or joins an online
// room. Terminal rendering and keyboard routing are treated as an
// external collaborator this binary does not implement (§1 Non-goals);
// this loop drives the core headlessly and logs status the way an
// attached UI would render it.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tunetui/tunetui/internal/audiosink"
	"github.com/tunetui/tunetui/internal/config"
	"github.com/tunetui/tunetui/internal/invite"
	"github.com/tunetui/tunetui/internal/media"
	"github.com/tunetui/tunetui/internal/model"
	"github.com/tunetui/tunetui/internal/netclient"
	"github.com/tunetui/tunetui/internal/playback"
	"github.com/tunetui/tunetui/internal/relay"
	"github.com/tunetui/tunetui/internal/session"
	"github.com/tunetui/tunetui/internal/stats"
	"github.com/tunetui/tunetui/internal/supervisor"
	"github.com/tunetui/tunetui/internal/wire"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	args, err := parseArgs(argv)
	if err != nil {
		return err
	}
	if args.help {
		printHelp()
		return nil
	}
	if args.roomPortRange != nil && !args.host {
		return fmt.Errorf("--room-port-range requires --host")
	}

	homeAddr := args.ip
	if homeAddr == "" {
		homeAddr = fmt.Sprintf("0.0.0.0:%d", defaultHomeServerPort)
	}
	roomPortRange := defaultRoomPortRange
	if args.roomPortRange != nil {
		roomPortRange = *args.roomPortRange
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[TUNETUI] received signal %v, shutting down", sig)
		cancel()
	}()

	minimizeCh := make(chan os.Signal, 1)
	signal.Notify(minimizeCh, syscall.SIGHUP)

	cfgMgr, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("resolve config: %w", err)
	}
	state, err := cfgMgr.Load()
	if err != nil {
		log.Printf("[CONFIG] %v, continuing with default state", err)
		state = model.DefaultPersistedState()
	}

	core := playback.NewFromPersisted(state)

	sink, err := audiosink.NewBeepSink()
	var audioSink audiosink.Sink = sink
	if err != nil {
		log.Printf("[AUDIO] %v, falling back to a silent sink", err)
		audioSink = audiosink.NewNullSink()
	} else {
		audioSink.SetLoudnessNormalization(state.LoudnessNormalization)
		audioSink.SetCrossfadeSeconds(state.CrossfadeSeconds)
	}
	sup := supervisor.New(core, audioSink)

	statsDir := cfgMgr.Dir()
	statsStore, err := stats.Load(statsDir)
	if err != nil {
		log.Printf("[STATS] %v, starting from an empty store", err)
		statsStore = stats.NewStore()
	}

	mediaSess, err := media.NewSession()
	if err != nil {
		log.Printf("[MEDIA] %v, continuing without OS media integration", err)
		mediaSess = media.NewNoOpSession()
	}
	mediaSess.SetCommandHandler(newMediaBridge(core, audioSink, sup))
	defer mediaSess.Close()

	minimizeHooks := media.NewMinimizeHooks(func() {
		log.Printf("[TUNETUI] minimize requested, backgrounding playback")
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-minimizeCh:
				minimizeHooks.RequestMinimize()
			}
		}
	}()

	var host *relay.Host
	if args.host {
		h, boundAddr, err := startHost(homeAddr, roomPortRange)
		if err != nil {
			log.Printf("[RELAY] %v, continuing in offline mode", err)
		} else {
			host = h
			defer host.Shutdown()
			printInviteCode(boundAddr)
		}
	}

	var netClient *netclient.Client
	var fetcher *streamFetcher
	if !args.host && args.ipProvided {
		roomCode := os.Getenv("TUNETUI_ROOM_CODE")
		nickname := os.Getenv("TUNETUI_NICKNAME")
		if nickname == "" {
			nickname = "guest"
		}
		if roomCode == "" {
			log.Printf("[CLIENT] TUNETUI_ROOM_CODE not set, skipping join to %s", args.ip)
		} else {
			var password *string
			if p := os.Getenv("TUNETUI_ROOM_PASSWORD"); p != "" {
				password = &p
			}
			c, err := netclient.Connect(args.ip, roomCode, nickname, password)
			if err != nil {
				log.Printf("[CLIENT] %v, continuing in offline mode", err)
			} else {
				netClient = c
				fetcher = newStreamFetcher(c)
				sup.SetStreamer(fetcher)
				defer netClient.Shutdown()
			}
		}
	}

	runLoop(ctx, core, audioSink, sup, mediaSess, minimizeHooks, host, netClient, fetcher)

	finalState := core.ToPersisted(state)
	finalState.SelectedOutputDevice = state.SelectedOutputDevice
	if err := cfgMgr.Save(finalState); err != nil {
		log.Printf("[CONFIG] failed to save state on shutdown: %v", err)
	}
	if err := stats.Save(statsDir, statsStore); err != nil {
		log.Printf("[STATS] failed to save stats on shutdown: %v", err)
	}
	return nil
}

// startHost binds a relay.Host to the first free port in rng on the
// host portion of homeAddr, since --room-port-range names a pool of
// candidate ports rather than one fixed address.
func startHost(homeAddr string, rng portRange) (*relay.Host, string, error) {
	host, _, err := net.SplitHostPort(homeAddr)
	if err != nil {
		host = homeAddr
	}
	password := os.Getenv("TUNETUI_ROOM_PASSWORD")
	nickname := os.Getenv("TUNETUI_NICKNAME")
	if nickname == "" {
		nickname = "host"
	}
	sess := session.Host(nickname)

	var lastErr error
	for port := rng.start; port <= rng.end; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
		h, err := relay.NewHost(addr, sess, password)
		if err != nil {
			lastErr = err
			continue
		}
		return h, addr, nil
	}
	return nil, "", fmt.Errorf("no free port in range %d-%d: %w", rng.start, rng.end, lastErr)
}

func printInviteCode(boundAddr string) {
	advertiseAddr, err := invite.ResolveAdvertiseAddr(boundAddr)
	if err != nil {
		log.Printf("[INVITE] could not resolve advertise address: %v", err)
		return
	}
	hasPassword := os.Getenv("TUNETUI_ROOM_PASSWORD") != ""
	code, err := invite.Build(advertiseAddr, os.Getenv("TUNETUI_ROOM_PASSWORD"), hasPassword)
	if err != nil {
		log.Printf("[INVITE] could not build invite code: %v", err)
		return
	}
	log.Printf("[RELAY] hosting on %s, invite code: %s", boundAddr, code)
}

// runLoop ticks the supervisor and pushes now-playing state to the OS
// media session until ctx is cancelled. Draining host/client network
// events and applying them to core/session state is the same select
// an attached UI would perform; headless, we just log status changes.
func runLoop(ctx context.Context, core *playback.Core, sink audiosink.Sink, sup *supervisor.Supervisor, mediaSess media.Session, minimizeHooks *media.MinimizeHooks, host *relay.Host, netClient *netclient.Client, fetcher *streamFetcher) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var hostEvents <-chan relay.Event
	if host != nil {
		hostEvents = host.Events()
	}
	var clientEvents <-chan netclient.NetworkEvent
	if netClient != nil {
		clientEvents = netClient.Events()
	}

	var currentSession *session.Session
	lastBroadcastPath := ""
	lastStatus := core.Status
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sup.Tick()
			pushNowPlaying(mediaSess, core, sink, sup)
			broadcastTransportIfTrackChanged(currentSession, sup, core, host, netClient, &lastBroadcastPath)
			if minimizeHooks.PollRestoreRequested() {
				log.Printf("[TUNETUI] restore requested, bringing window back")
			}
			if core.Status != lastStatus {
				log.Printf("[PLAYBACK] %s", core.Status)
				lastStatus = core.Status
			}
		case ev, ok := <-hostEvents:
			if !ok {
				hostEvents = nil
				continue
			}
			if ev.SessionSync != nil {
				currentSession = ev.SessionSync
			}
			if ev.Status != "" {
				log.Printf("[RELAY] %s", ev.Status)
			}
		case ev, ok := <-clientEvents:
			if !ok {
				clientEvents = nil
				continue
			}
			if ev.Status != "" {
				log.Printf("[CLIENT] %s", ev.Status)
			}
			if ev.SessionSync != nil {
				currentSession = ev.SessionSync
				if fetcher != nil {
					fetcher.RequestMissing(ev.SessionSync.SharedQueue)
				}
			}
			if fetcher != nil {
				if sourcePath, localPath, done := fetcher.HandleEvent(ev); done {
					log.Printf("[STREAM] finished downloading %s", localPath)
					sup.NotifyStreamReady(sourcePath, localPath)
				}
			}
		}
	}
}

// broadcastTransportIfTrackChanged notices when the supervisor has
// moved on to a new track and, if the local participant is allowed to
// control playback in the current room (§4.4), broadcasts a
// TransportPlayTrack command carrying enough metadata for peers
// without the file locally to show now-playing before they've
// resolved (or streamed) it themselves.
func broadcastTransportIfTrackChanged(currentSession *session.Session, sup *supervisor.Supervisor, core *playback.Core, host *relay.Host, netClient *netclient.Client, lastBroadcastPath *string) {
	path := sup.CurrentPath()
	if path == "" || path == *lastBroadcastPath {
		return
	}
	if currentSession == nil || !currentSession.CanLocalControlPlayback() {
		return
	}
	*lastBroadcastPath = path

	track, _ := core.TrackByPath(path)
	command := session.TransportCommand{
		Kind:   session.TransportPlayTrack,
		Path:   path,
		Title:  track.Title,
		Artist: track.Artist,
		Album:  track.Album,
	}
	action := wire.Action{Kind: wire.ActionTransport, Transport: &session.TransportEnvelope{Command: command}}

	switch {
	case host != nil:
		host.SendLocalAction(action)
	case netClient != nil:
		netClient.SendAction(action)
	}
}
