package extract

import (
	"context"
)

// MediaItem describes one fetchable piece of media inside a manifest
type MediaItem struct {
	URL          string  `json:"url"`
	Title        string  `json:"title,omitempty"`
	Artist       string  `json:"artist,omitempty"`
	Album        string  `json:"album,omitempty"`
	Genre        string  `json:"genre,omitempty"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	AlbumType    string  `json:"album_type,omitempty"`
	TrackNumber  int     `json:"track_number,omitempty"`
	TotalTracks  int     `json:"total_tracks,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	ThumbnailURL string  `json:"thumbnail,omitempty"`
}

// Manifest is the result of probing a source URL. A single item means a
// single fetch; multiple items mean a collection.
type Manifest struct {
	Title string      `json:"title,omitempty"`
	Items []MediaItem `json:"items"`
}

// Artifact describes a completed fetch on disk
type Artifact struct {
	FilePath      string
	SidecarPath   string
	ThumbnailPath string
	Bytes         int64
	Checksum      string
}

// ProgressFunc reports transfer progress. total is -1 when the source does
// not announce a length. Implementations return an error to abort the
// transfer, which is how pause and stop signals reach the stream loop.
type ProgressFunc func(written, total int64) error

// Extractor resolves a source URL into media items and fetches them
type Extractor interface {
	// Probe resolves a URL into a manifest without transferring media
	Probe(ctx context.Context, url string) (*Manifest, error)

	// Fetch transfers one item into destDir, writing the media file, its
	// metadata sidecar and, when available, a thumbnail image.
	Fetch(ctx context.Context, item *MediaItem, destDir string, progress ProgressFunc) (*Artifact, error)
}
