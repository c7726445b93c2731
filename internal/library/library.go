// Package library scans configured folders into a normalized-path ->
// Track index, the leaf dependency every other core package builds on.
package library

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhowden/tag"

	"github.com/tunetui/tunetui/internal/model"
)

// Index maps a normalized path key to the Track it identifies, plus the
// ordered slice the playback core iterates over.
type Index struct {
	Tracks []model.Track
	lookup map[string]int
}

// Scan walks every folder and returns tracks merge-sorted by path,
// de-duplicated by normalized path key. Folders that cannot be read are
// skipped with a logged warning rather than failing the whole scan.
func Scan(folders []string) *Index {
	seen := make(map[string]model.Track)
	for _, folder := range folders {
		scanFolder(folder, seen)
	}

	tracks := make([]model.Track, 0, len(seen))
	for _, t := range seen {
		tracks = append(tracks, t)
	}
	sort.Slice(tracks, func(i, j int) bool {
		return model.NormalizedPathKey(tracks[i].Path) < model.NormalizedPathKey(tracks[j].Path)
	})

	return build(tracks)
}

func build(tracks []model.Track) *Index {
	idx := &Index{Tracks: tracks, lookup: make(map[string]int, len(tracks))}
	for i, t := range tracks {
		idx.lookup[model.NormalizedPathKey(t.Path)] = i
	}
	return idx
}

func scanFolder(folder string, into map[string]model.Track) {
	err := filepath.Walk(folder, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil // skip unreadable entries, keep walking
		}
		if info.IsDir() || !model.HasAudioExtension(path) {
			return nil
		}
		key := model.NormalizedPathKey(path)
		if _, exists := into[key]; exists {
			return nil
		}
		into[key] = readTrack(path)
		return nil
	})
	if err != nil {
		log.Printf("[LIBRARY] failed to scan folder %s: %v", folder, err)
	}
}

// readTrack extracts tag metadata, falling back to the file stem for
// the title when tags are absent or unreadable.
func readTrack(path string) model.Track {
	t := model.Track{Path: path, Title: stem(path)}

	f, err := os.Open(path)
	if err != nil {
		return t
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return t
	}
	if title := meta.Title(); title != "" {
		t.Title = title
	}
	if artist := meta.Artist(); artist != "" {
		t.Artist = artist
	}
	if album := meta.Album(); album != "" {
		t.Album = album
	}
	return t
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Lookup returns the track index for a normalized path key, or -1.
func (idx *Index) Lookup(path string) int {
	if idx == nil {
		return -1
	}
	i, ok := idx.lookup[model.NormalizedPathKey(path)]
	if !ok {
		return -1
	}
	return i
}

// SyntheticTrack builds a Track for a path absent from the index (used
// when materializing a playlist queue that references an unscanned
// file): the title is the file stem.
func SyntheticTrack(path string) model.Track {
	return model.Track{Path: path, Title: stem(path)}
}
