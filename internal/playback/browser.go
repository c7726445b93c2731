package playback

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tunetui/tunetui/internal/model"
)

// refreshBrowserEntries rebuilds BrowserEntries for the current
// navigation context (root / folder / playlist).
func (c *Core) refreshBrowserEntries() {
	var entries []model.BrowserEntry

	switch {
	case c.BrowserPlaylist != "":
		entries = append(entries, model.BrowserEntry{Kind: model.EntryBack, Label: "[..] Back"})
		if playlist, ok := c.Playlists[c.BrowserPlaylist]; ok {
			for _, path := range playlist.Tracks {
				entries = append(entries, model.BrowserEntry{
					Kind:  model.EntryTrack,
					Path:  path,
					Label: c.displayTitle(path),
				})
			}
		}

	case c.BrowserPath != "":
		entries = append(entries, model.BrowserEntry{Kind: model.EntryBack, Label: "[..] Back"})
		entries = append(entries, c.childEntries(c.BrowserPath)...)

	default:
		for _, root := range c.Folders {
			entries = append(entries, model.BrowserEntry{
				Kind:  model.EntryFolder,
				Path:  root,
				Label: filepath.Base(root),
			})
		}
		names := make([]string, 0, len(c.Playlists))
		for name := range c.Playlists {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			entries = append(entries, model.BrowserEntry{Kind: model.EntryPlaylist, Path: name, Label: name})
		}
	}

	c.BrowserEntries = entries
	if c.SelectedBrowser >= len(entries) {
		if len(entries) == 0 {
			c.SelectedBrowser = 0
		} else {
			c.SelectedBrowser = len(entries) - 1
		}
	}
}

func (c *Core) childEntries(dir string) []model.BrowserEntry {
	infos, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var folders, tracks []model.BrowserEntry
	for _, entry := range infos {
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			folders = append(folders, model.BrowserEntry{Kind: model.EntryFolder, Path: full, Label: entry.Name()})
			continue
		}
		if model.HasAudioExtension(full) {
			tracks = append(tracks, model.BrowserEntry{Kind: model.EntryTrack, Path: full, Label: c.displayTitle(full)})
		}
	}
	sort.Slice(folders, func(i, j int) bool { return strings.ToLower(folders[i].Label) < strings.ToLower(folders[j].Label) })
	sort.Slice(tracks, func(i, j int) bool { return strings.ToLower(tracks[i].Label) < strings.ToLower(tracks[j].Label) })
	return append(folders, tracks...)
}

func (c *Core) displayTitle(path string) string {
	if idx, ok := c.trackLookup[model.NormalizedPathKey(path)]; ok {
		return c.tracks[idx].Title
	}
	return stemOf(path)
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
