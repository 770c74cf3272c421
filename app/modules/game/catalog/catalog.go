// Package catalog provides the file-backed song catalog. The game core only
// knows song ids; titles, artists and durations come from here.
package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// FileCatalog serves songs loaded from a YAML playlist file.
type FileCatalog struct {
	mu     sync.Mutex
	songs  map[sharedtypes.SongID]gametypes.Song
	order  []sharedtypes.SongID
	random *rand.Rand
}

type playlistFile struct {
	Songs []playlistEntry `yaml:"songs"`
}

// playlistEntry keeps durations human-editable ("3m20s") in the YAML file.
type playlistEntry struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Artist   string `yaml:"artist"`
	Duration string `yaml:"duration"`
}

// Load reads a playlist file. Duplicate ids are rejected so a playlist typo
// cannot silently shadow a track.
func Load(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}
	var playlist playlistFile
	if err := yaml.Unmarshal(data, &playlist); err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}

	songs := make([]gametypes.Song, 0, len(playlist.Songs))
	for _, entry := range playlist.Songs {
		song := gametypes.Song{
			ID:     sharedtypes.SongID(entry.ID),
			Title:  entry.Title,
			Artist: entry.Artist,
		}
		if entry.Duration != "" {
			d, err := time.ParseDuration(entry.Duration)
			if err != nil {
				return nil, fmt.Errorf("bad duration for song %s: %w", entry.ID, err)
			}
			song.Duration = d
		}
		songs = append(songs, song)
	}
	return New(songs)
}

// New builds a catalog from an in-memory song list.
func New(songs []gametypes.Song) (*FileCatalog, error) {
	if len(songs) == 0 {
		return nil, fmt.Errorf("playlist is empty")
	}
	c := &FileCatalog{
		songs:  make(map[sharedtypes.SongID]gametypes.Song, len(songs)),
		random: rand.New(rand.NewSource(rand.Int63())),
	}
	for _, song := range songs {
		if song.ID == "" {
			return nil, fmt.Errorf("playlist song %q has no id", song.Title)
		}
		if _, dup := c.songs[song.ID]; dup {
			return nil, fmt.Errorf("duplicate song id %s in playlist", song.ID)
		}
		c.songs[song.ID] = song
		c.order = append(c.order, song.ID)
	}
	return c, nil
}

// GetSong resolves one song's metadata.
func (c *FileCatalog) GetSong(ctx context.Context, id sharedtypes.SongID) (*gametypes.Song, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	song, ok := c.songs[id]
	if !ok {
		return nil, fmt.Errorf("song %s not in playlist", id)
	}
	return &song, nil
}

// Size reports how many songs the playlist holds.
func (c *FileCatalog) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Pick returns a random song that has not been played yet, or false when the
// playlist is exhausted. Hosts use it to open the next round.
func (c *FileCatalog) Pick(played []sharedtypes.SongID) (sharedtypes.SongID, bool) {
	seen := make(map[sharedtypes.SongID]bool, len(played))
	for _, id := range played {
		seen[id] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var remaining []sharedtypes.SongID
	for _, id := range c.order {
		if !seen[id] {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == 0 {
		return "", false
	}
	return remaining[c.random.Intn(len(remaining))], true
}
