package playback

import (
	"fmt"

	"github.com/tunetui/tunetui/internal/library"
	"github.com/tunetui/tunetui/internal/model"
)

// AddFolder registers a new library root, skipping duplicates, scans
// it, merges the result, and rebuilds the main queue and browser.
func (c *Core) AddFolder(path string) {
	key := model.NormalizedPathKey(path)
	for _, existing := range c.Folders {
		if model.NormalizedPathKey(existing) == key {
			c.setStatus("Folder already added")
			return
		}
	}
	c.Folders = append(c.Folders, path)
	c.rescanAndMerge()
	c.setStatus("Added folder: %d tracks found", len(c.tracks))
}

// Rescan re-scans every configured folder from scratch.
func (c *Core) Rescan() {
	c.rescanAndMerge()
	c.setStatus("Rescanned library: %d tracks", len(c.tracks))
}

func (c *Core) rescanAndMerge() {
	idx := library.Scan(c.Folders)
	c.tracks = idx.Tracks
	c.trackLookup = buildLookup(idx.Tracks)
	c.ResetMainQueue()
	c.refreshBrowserEntries()
}

// CreatePlaylist adds an empty playlist if the name is not already used.
func (c *Core) CreatePlaylist(name string) error {
	if _, exists := c.Playlists[name]; exists {
		return fmt.Errorf("playlist %q already exists", name)
	}
	c.Playlists[name] = model.Playlist{}
	c.setStatus("Created playlist %q", name)
	c.refreshBrowserEntries()
	return nil
}

// RemovePlaylist deletes a playlist by name.
func (c *Core) RemovePlaylist(name string) {
	delete(c.Playlists, name)
	if c.BrowserPlaylist == name {
		c.BrowserPlaylist = ""
		c.SelectedBrowser = 0
	}
	c.setStatus("Removed playlist %q", name)
	c.refreshBrowserEntries()
}

// AddSelectedToPlaylist appends the currently selected browser track to
// the named playlist.
func (c *Core) AddSelectedToPlaylist(name string) error {
	if c.SelectedBrowser >= len(c.BrowserEntries) {
		return fmt.Errorf("nothing selected")
	}
	entry := c.BrowserEntries[c.SelectedBrowser]
	if entry.Kind != model.EntryTrack {
		return fmt.Errorf("selected entry is not a track")
	}
	playlist, ok := c.Playlists[name]
	if !ok {
		return fmt.Errorf("playlist %q does not exist", name)
	}
	playlist.Tracks = append(playlist.Tracks, entry.Path)
	c.Playlists[name] = playlist
	c.setStatus("Added to playlist %q", name)
	return nil
}

// RemoveSelectedFromCurrentPlaylist removes the currently selected
// track from the playlist currently being browsed.
func (c *Core) RemoveSelectedFromCurrentPlaylist() error {
	if c.BrowserPlaylist == "" {
		return fmt.Errorf("not browsing a playlist")
	}
	if c.SelectedBrowser >= len(c.BrowserEntries) {
		return fmt.Errorf("nothing selected")
	}
	entry := c.BrowserEntries[c.SelectedBrowser]
	if entry.Kind != model.EntryTrack {
		return fmt.Errorf("selected entry is not a track")
	}
	playlist := c.Playlists[c.BrowserPlaylist]
	filtered := playlist.Tracks[:0]
	removed := false
	for _, p := range playlist.Tracks {
		if !removed && model.PathEqual(p, entry.Path) {
			removed = true
			continue
		}
		filtered = append(filtered, p)
	}
	playlist.Tracks = filtered
	c.Playlists[c.BrowserPlaylist] = playlist
	c.refreshBrowserEntries()
	c.setStatus("Removed from playlist")
	return nil
}

// LoadPlaylistQueue materializes the queue from a playlist's paths,
// synthesizing Track entries for paths the library index doesn't know
// about (title = file stem, per spec §4.2).
func (c *Core) LoadPlaylistQueue(name string) error {
	playlist, ok := c.Playlists[name]
	if !ok {
		return fmt.Errorf("playlist %q does not exist", name)
	}
	c.Queue = c.queueFromPaths(playlist.Tracks)
	c.rebuildShuffleOrder()
	c.CurrentQueueIndex = -1
	c.setStatus("Loaded playlist %q: %d tracks", name, len(c.Queue))
	return nil
}
