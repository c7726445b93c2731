// Package playback implements the queue + mode state machine described
// in spec §4.2: selection, browser navigation, and next/prev
// computation. It owns no I/O — library.Index feeds it tracks, and the
// caller (the UI loop, or a test) drives it synchronously.
package playback

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tunetui/tunetui/internal/library"
	"github.com/tunetui/tunetui/internal/model"
)

// Core is the runtime playback state described in spec §3 under
// "PlaybackCore (runtime, not persisted)".
type Core struct {
	Folders   []string
	Playlists map[string]model.Playlist

	tracks      []model.Track
	trackLookup map[string]int

	Queue             []int
	CurrentQueueIndex int // -1 means "none"

	Mode model.PlaybackMode

	BrowserPath     string // "" means root; BrowserPath/BrowserPlaylist mutually exclusive
	BrowserPlaylist string // "" means none
	BrowserEntries  []model.BrowserEntry
	SelectedBrowser int

	Status string

	shuffleOrder  []int
	shuffleCursor int
	rng           *rand.Rand
}

// NewFromPersisted constructs a Core from a loaded PersistedState,
// scanning its folders immediately (spec §3 Lifecycle).
func NewFromPersisted(state model.PersistedState) *Core {
	idx := library.Scan(state.Folders)
	playlists := state.Playlists
	if playlists == nil {
		playlists = map[string]model.Playlist{}
	}
	c := &Core{
		Folders:           append([]string(nil), state.Folders...),
		Playlists:         playlists,
		tracks:            idx.Tracks,
		trackLookup:       buildLookup(idx.Tracks),
		CurrentQueueIndex: -1,
		Mode:              state.PlaybackMode,
		Status:            "Ready",
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.ResetMainQueue()
	c.refreshBrowserEntries()
	return c
}

func buildLookup(tracks []model.Track) map[string]int {
	lookup := make(map[string]int, len(tracks))
	for i, t := range tracks {
		lookup[model.NormalizedPathKey(t.Path)] = i
	}
	return lookup
}

// ToPersisted folds the mutable parts of the core back into a
// PersistedState for saving, preserving the caller-supplied base for
// the fields the core does not own (theme, loudness, crossfade, etc).
func (c *Core) ToPersisted(base model.PersistedState) model.PersistedState {
	base.Folders = append([]string(nil), c.Folders...)
	base.Playlists = c.Playlists
	base.PlaybackMode = c.Mode
	return base
}

func (c *Core) setStatus(format string, args ...any) {
	if len(args) == 0 {
		c.Status = format
		return
	}
	c.Status = fmt.Sprintf(format, args...)
}

// SetStatus lets external callers (the auto-advance supervisor, the
// online session) report a status line through the same field the UI
// already renders from.
func (c *Core) SetStatus(format string, args ...any) {
	c.setStatus(format, args...)
}

// ResetMainQueue loads the library queue (§4.2.2) and clears selection.
func (c *Core) ResetMainQueue() {
	c.Queue = c.metadataSortedLibraryQueue()
	c.rebuildShuffleOrder()
	c.CurrentQueueIndex = -1
	c.setStatus("Loaded main library queue")
}

func (c *Core) metadataSortedLibraryQueue() []int {
	queue := make([]int, len(c.tracks))
	for i := range c.tracks {
		queue[i] = i
	}
	sort.SliceStable(queue, func(i, j int) bool {
		ti, tj := c.tracks[queue[i]], c.tracks[queue[j]]
		li, lj := strings.ToLower(ti.Title), strings.ToLower(tj.Title)
		if li != lj {
			return li < lj
		}
		return model.NormalizedPathKey(ti.Path) < model.NormalizedPathKey(tj.Path)
	})
	return queue
}

// SelectNext/SelectPrev move the browser cursor, saturating at the bounds.
func (c *Core) SelectNext() {
	if len(c.BrowserEntries) == 0 {
		return
	}
	c.SelectedBrowser++
	if c.SelectedBrowser > len(c.BrowserEntries)-1 {
		c.SelectedBrowser = len(c.BrowserEntries) - 1
	}
}

func (c *Core) SelectPrev() {
	if c.SelectedBrowser > 0 {
		c.SelectedBrowser--
	}
}

// ActivateSelected applies the browser entry currently selected; see
// spec §4.2 and §4.2.1. Returns the track path and true only for Track
// entries (the track the caller should play).
func (c *Core) ActivateSelected() (string, bool) {
	if c.SelectedBrowser >= len(c.BrowserEntries) {
		c.setStatus("Nothing selected")
		return "", false
	}
	entry := c.BrowserEntries[c.SelectedBrowser]

	switch entry.Kind {
	case model.EntryBack:
		c.navigateBack()
		return "", false

	case model.EntryFolder:
		c.BrowserPlaylist = ""
		c.BrowserPath = entry.Path
		c.SelectedBrowser = 0
		c.refreshBrowserEntries()
		c.setStatus("Opened folder")
		return "", false

	case model.EntryPlaylist:
		c.BrowserPath = ""
		c.BrowserPlaylist = entry.Path
		c.SelectedBrowser = 0
		c.refreshBrowserEntries()
		c.setStatus("Opened playlist")
		return "", false

	case model.EntryTrack:
		if c.BrowserPlaylist != "" {
			if playlist, ok := c.Playlists[c.BrowserPlaylist]; ok {
				c.Queue = c.queueFromPaths(playlist.Tracks)
			} else {
				c.Queue = nil
			}
		} else {
			c.Queue = c.metadataSortedLibraryQueue()
		}
		c.rebuildShuffleOrder()
		c.CurrentQueueIndex = -1
		for pos, trackIdx := range c.Queue {
			if model.PathEqual(c.tracks[trackIdx].Path, entry.Path) {
				c.CurrentQueueIndex = pos
				break
			}
		}
		c.setStatus("Playing selected track")
		return entry.Path, true
	}
	return "", false
}

// navigateBack implements §4.2.1.
func (c *Core) navigateBack() {
	if c.BrowserPlaylist != "" {
		c.BrowserPlaylist = ""
		c.SelectedBrowser = 0
		c.refreshBrowserEntries()
		c.setStatus("Went back")
		return
	}

	if c.BrowserPath == "" {
		return
	}

	var bestRoot string
	bestDepth := -1
	for _, root := range c.Folders {
		if !model.PathIsWithin(c.BrowserPath, root) {
			continue
		}
		depth := len(strings.Split(filepath.Clean(root), string(filepath.Separator)))
		if depth > bestDepth {
			bestDepth = depth
			bestRoot = root
		}
	}

	if bestDepth == -1 {
		c.BrowserPath = ""
	} else if model.PathEqual(c.BrowserPath, bestRoot) {
		c.BrowserPath = ""
	} else {
		parent := filepath.Dir(c.BrowserPath)
		if model.PathIsWithin(parent, bestRoot) {
			c.BrowserPath = parent
		} else {
			c.BrowserPath = ""
		}
	}

	c.SelectedBrowser = 0
	c.refreshBrowserEntries()
	c.setStatus("Went back")
}

// CycleMode advances the playback mode (Normal->Shuffle->Loop->LoopOne->Normal).
func (c *Core) CycleMode() {
	c.Mode = c.Mode.Next()
	c.setStatus("Playback mode: %s", c.Mode)
}

// TrackByPath looks up display metadata for path, for callers (media
// session bridge, status lines) that only hold a path.
func (c *Core) TrackByPath(path string) (model.Track, bool) {
	idx, ok := c.trackLookup[model.NormalizedPathKey(path)]
	if !ok {
		return model.Track{}, false
	}
	return c.tracks[idx], true
}

// CurrentPath returns the path of the track at CurrentQueueIndex.
func (c *Core) CurrentPath() (string, bool) {
	if c.CurrentQueueIndex < 0 || c.CurrentQueueIndex >= len(c.Queue) {
		return "", false
	}
	trackIdx := c.Queue[c.CurrentQueueIndex]
	if trackIdx < 0 || trackIdx >= len(c.tracks) {
		return "", false
	}
	return c.tracks[trackIdx].Path, true
}

// NextTrackPath advances CurrentQueueIndex per the active mode (§4.2).
func (c *Core) NextTrackPath() (string, bool) {
	if len(c.Queue) == 0 {
		c.setStatus("Queue is empty")
		return "", false
	}

	idx, ok := c.nextIndex()
	if !ok {
		return "", false
	}
	c.CurrentQueueIndex = idx
	trackIdx := c.Queue[idx]
	return c.tracks[trackIdx].Path, true
}

func (c *Core) nextIndex() (int, bool) {
	if c.CurrentQueueIndex < 0 {
		if c.Mode == model.ModeShuffle {
			if len(c.shuffleOrder) != len(c.Queue) {
				c.rebuildShuffleOrder()
			}
			if len(c.shuffleOrder) == 0 {
				return 0, false
			}
			c.shuffleCursor = 0
			return c.shuffleOrder[0], true
		}
		return 0, true
	}

	current := c.CurrentQueueIndex
	switch c.Mode {
	case model.ModeLoopOne:
		return current, true

	case model.ModeNormal:
		next := current + 1
		return next, next < len(c.Queue)

	case model.ModeLoop:
		if len(c.Queue) == 0 {
			return 0, false
		}
		return (current + 1) % len(c.Queue), true

	case model.ModeShuffle:
		if len(c.shuffleOrder) != len(c.Queue) {
			c.rebuildShuffleOrder()
		}
		if len(c.shuffleOrder) == 0 {
			return 0, false
		}
		for pos, idx := range c.shuffleOrder {
			if idx == current {
				c.shuffleCursor = pos
				break
			}
		}
		c.shuffleCursor = (c.shuffleCursor + 1) % len(c.shuffleOrder)
		return c.shuffleOrder[c.shuffleCursor], true

	default:
		return 0, false
	}
}

// PrevTrackPath mirrors NextTrackPath (§4.2, "implementation mirrors next").
func (c *Core) PrevTrackPath() (string, bool) {
	if len(c.Queue) == 0 {
		c.setStatus("Queue is empty")
		return "", false
	}

	idx, ok := c.prevIndex()
	if !ok {
		return "", false
	}
	c.CurrentQueueIndex = idx
	trackIdx := c.Queue[idx]
	return c.tracks[trackIdx].Path, true
}

func (c *Core) prevIndex() (int, bool) {
	if c.CurrentQueueIndex < 0 {
		if c.Mode == model.ModeShuffle {
			if len(c.shuffleOrder) != len(c.Queue) {
				c.rebuildShuffleOrder()
			}
			if len(c.shuffleOrder) == 0 {
				return 0, false
			}
			c.shuffleCursor = len(c.shuffleOrder) - 1
			return c.shuffleOrder[c.shuffleCursor], true
		}
		return len(c.Queue) - 1, true
	}

	current := c.CurrentQueueIndex
	switch c.Mode {
	case model.ModeLoopOne:
		return current, true

	case model.ModeNormal:
		prev := current - 1
		return prev, prev >= 0

	case model.ModeLoop:
		if len(c.Queue) == 0 {
			return 0, false
		}
		return (current - 1 + len(c.Queue)) % len(c.Queue), true

	case model.ModeShuffle:
		if len(c.shuffleOrder) != len(c.Queue) {
			c.rebuildShuffleOrder()
		}
		if len(c.shuffleOrder) == 0 {
			return 0, false
		}
		for pos, idx := range c.shuffleOrder {
			if idx == current {
				c.shuffleCursor = pos
				break
			}
		}
		c.shuffleCursor = (c.shuffleCursor - 1 + len(c.shuffleOrder)) % len(c.shuffleOrder)
		return c.shuffleOrder[c.shuffleCursor], true

	default:
		return 0, false
	}
}

// rebuildShuffleOrder regenerates the shuffle bag (§4.2.3) whenever the
// queue length changes.
func (c *Core) rebuildShuffleOrder() {
	n := len(c.Queue)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	c.rng.Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	c.shuffleOrder = order
	c.shuffleCursor = 0
}

func (c *Core) queueFromPaths(paths []string) []int {
	queue := make([]int, 0, len(paths))
	for _, p := range paths {
		idx, ok := c.trackIndexOrSynthesize(p)
		if ok {
			queue = append(queue, idx)
		}
	}
	return queue
}

func (c *Core) trackIndexOrSynthesize(path string) (int, bool) {
	key := model.NormalizedPathKey(path)
	if idx, ok := c.trackLookup[key]; ok {
		return idx, true
	}
	track := library.SyntheticTrack(path)
	idx := len(c.tracks)
	c.tracks = append(c.tracks, track)
	c.trackLookup[key] = idx
	return idx, true
}
