package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/tunevault/tunevault-go/internal/errors"
)

// SidecarSuffix is appended to a media file path to name its metadata sidecar
const SidecarSuffix = ".info.json"

// Sidecar mirrors the JSON document written next to each fetched media file
type Sidecar struct {
	Title       string  `json:"title,omitempty"`
	Artist      string  `json:"artist,omitempty"`
	Album       string  `json:"album,omitempty"`
	Genre       string  `json:"genre,omitempty"`
	ReleaseDate string  `json:"release_date,omitempty"`
	AlbumType   string  `json:"album_type,omitempty"`
	TrackNumber int     `json:"track_number,omitempty"`
	TotalTracks int     `json:"total_tracks,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	SourceURL   string  `json:"source_url,omitempty"`
}

// SidecarPath returns the sidecar path for a media file
func SidecarPath(mediaPath string) string {
	return mediaPath + SidecarSuffix
}

// ParseSidecar reads the sidecar next to mediaPath and resolves it into track
// metadata. A missing or unreadable sidecar is not fatal: every field falls
// back to a default so ingestion can proceed on the file alone.
func ParseSidecar(mediaPath string) (*TrackMetadata, error) {
	meta := defaultMetadata(mediaPath)

	data, err := os.ReadFile(SidecarPath(mediaPath))
	if os.IsNotExist(err) {
		return meta, nil
	}
	if err != nil {
		return meta, apperrors.NewSidecarError("failed to read sidecar", err)
	}

	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return meta, apperrors.NewSidecarError("failed to parse sidecar", err)
	}

	applySidecar(meta, &sc)
	return meta, nil
}

// defaultMetadata builds the fallback record for a media file. The title
// defaults to the filename without its extension.
func defaultMetadata(mediaPath string) *TrackMetadata {
	base := filepath.Base(mediaPath)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	return &TrackMetadata{
		Title:  title,
		Artist: "Unknown",
		Album:  "Unknown",
		Genre:  "Unknown",
	}
}

func applySidecar(meta *TrackMetadata, sc *Sidecar) {
	if sc.Title != "" {
		meta.Title = sc.Title
	}
	if sc.Artist != "" {
		meta.Artist = sc.Artist
	}
	if sc.Album != "" {
		meta.Album = sc.Album
	}
	if sc.Genre != "" {
		meta.Genre = sc.Genre
	}
	meta.AlbumType = sc.AlbumType
	meta.TrackNumber = sc.TrackNumber
	meta.TotalTracks = sc.TotalTracks
	meta.Duration = sc.Duration
	meta.Year = releaseYear(sc.ReleaseDate)
}

// releaseYear extracts the year component from a release date. Dates arrive
// as "YYYY-MM-DD" or a bare "YYYY"; everything before the first dash is the
// year. Unparseable values yield zero.
func releaseYear(releaseDate string) int {
	if releaseDate == "" {
		return 0
	}
	yearPart := releaseDate
	if idx := strings.Index(releaseDate, "-"); idx >= 0 {
		yearPart = releaseDate[:idx]
	}
	year, err := strconv.Atoi(strings.TrimSpace(yearPart))
	if err != nil {
		return 0
	}
	return year
}

// WriteSidecar serializes a sidecar document next to mediaPath
func WriteSidecar(mediaPath string, sc *Sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return apperrors.NewSidecarError("failed to marshal sidecar", err)
	}
	if err := os.WriteFile(SidecarPath(mediaPath), data, 0644); err != nil {
		return apperrors.NewFileSystemError("failed to write sidecar", err)
	}
	return nil
}
