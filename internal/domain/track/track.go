// Package track defines the immutable Track value shared by the queue,
// the play history and the uploaded library.
package track

import (
	"errors"
	"path"
	"strings"
)

// Source identifies where a track came from.
type Source string

const (
	// SourceRemote is a track found through the remote catalog search.
	SourceRemote Source = "remote"
	// SourceLocal is a track the user uploaded to the service.
	SourceLocal Source = "local"
)

// UnknownArtist is used for uploaded files that carry no artist metadata.
const UnknownArtist = "Unknown Artist"

var (
	// ErrMissingID indicates a track without identity.
	ErrMissingID = errors.New("track has no id")

	// ErrMissingStreamURL indicates a track that cannot be handed to a transport.
	ErrMissingStreamURL = errors.New("track has no stream url")
)

// Track is a playable item. It is a value type: owners copy it and any
// change produces a new Track.
type Track struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	StreamURL    string  `json:"url"`
	ThumbnailURL string  `json:"thumbnail,omitempty"`
	Source       Source  `json:"source"`
	DurationHint float64 `json:"duration,omitempty"` // seconds, 0 when unknown
}

// NewRemote builds a track from a search hit and its resolved stream URL.
func NewRemote(id, title, artist, streamURL, thumbnail string, durationHint float64) Track {
	return Track{
		ID:           id,
		Title:        title,
		Artist:       artist,
		StreamURL:    streamURL,
		ThumbnailURL: thumbnail,
		Source:       SourceRemote,
		DurationHint: durationHint,
	}
}

// NewUploaded builds a track for a file stored by the service under filename.
// originalName is the name the user picked; its extension is dropped for the title.
func NewUploaded(filename, originalName, apiBase string) Track {
	title := strings.TrimSuffix(originalName, path.Ext(originalName))
	if title == "" {
		title = filename
	}
	return Track{
		ID:        filename,
		Title:     title,
		Artist:    UnknownArtist,
		StreamURL: strings.TrimRight(apiBase, "/") + "/songs/" + filename,
		Source:    SourceLocal,
	}
}

// WithStreamURL returns a copy of t pointing at a newly resolved stream.
func (t Track) WithStreamURL(url string) Track {
	t.StreamURL = url
	return t
}

// Validate checks the track can be played.
func (t Track) Validate() error {
	if t.ID == "" {
		return ErrMissingID
	}
	if t.StreamURL == "" {
		return ErrMissingStreamURL
	}
	return nil
}

// IsAudioFile reports whether name has an extension the service accepts.
func IsAudioFile(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	audioExtensions := map[string]bool{
		".mp3": true, ".wav": true, ".m4a": true,
		".flac": true, ".ogg": true,
	}
	return audioExtensions[ext]
}

// Key is the source-qualified identity of t. A catalog id and an upload
// filename may coincide; their keys never do.
func (t Track) Key() string {
	return string(t.Source) + ":" + t.ID
}

// IndexOfTrack returns the position of the track with t's Key in tracks, or -1.
func IndexOfTrack(tracks []Track, t Track) int {
	key := t.Key()
	for i, c := range tracks {
		if c.Key() == key {
			return i
		}
	}
	return -1
}

// IndexOf returns the position of the track with id in tracks, or -1.
func IndexOf(tracks []Track, id string) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
