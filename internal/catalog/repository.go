package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/tunevault/tunevault-go/internal/errors"
	"github.com/tunevault/tunevault-go/internal/metadata"
	"github.com/tunevault/tunevault-go/internal/monitoring"
	"github.com/tunevault/tunevault-go/internal/store"
)

// UnknownName is the placeholder recorded when a metadata field is absent.
// Placeholder rows participate in get-or-create and cascade deletion like any
// other artist, album or genre.
const UnknownName = "Unknown"

// Repository is the write and query surface of the media catalog. All
// mutations run as single transactions against the metadata store.
type Repository struct {
	store  *store.MetadataStore
	logger *zap.Logger
}

// NewRepository creates a catalog repository
func NewRepository(ms *store.MetadataStore, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		store:  ms,
		logger: logger,
	}
}

// IngestResult reports the outcome of an ingestion
type IngestResult struct {
	SongID  int64
	Created bool
}

// Ingest records a fetched audio file in the catalog. Referenced artist,
// genre and album rows are created on demand; a song already present under
// the same file path or title is a soft success with Created=false.
func (r *Repository) Ingest(ctx context.Context, filePath string, meta *metadata.TrackMetadata) (*IngestResult, error) {
	if filePath == "" {
		return nil, apperrors.NewValidationError("file path is required")
	}
	if meta == nil {
		return nil, apperrors.NewValidationError("track metadata is required")
	}

	start := time.Now()
	result := &IngestResult{}

	err := r.store.WithTx(ctx, func(tx *store.Tx) error {
		artistID, err := tx.GetOrCreateArtist(orUnknown(meta.Artist))
		if err != nil {
			return err
		}
		genreID, err := tx.GetOrCreateGenre(orUnknown(meta.Genre))
		if err != nil {
			return err
		}

		albumFields := store.AlbumFields{}
		if meta.Year > 0 {
			year := meta.Year
			albumFields.ReleaseYear = &year
		}
		if meta.AlbumType != "" {
			albumType := meta.AlbumType
			albumFields.AlbumType = &albumType
		}
		if meta.TotalTracks > 0 {
			total := meta.TotalTracks
			albumFields.TotalTracks = &total
		}
		albumID, err := tx.GetOrCreateAlbum(orUnknown(meta.Album), artistID, albumFields)
		if err != nil {
			return err
		}

		existing, found, err := tx.FindSong(filePath, meta.Title)
		if err != nil {
			return err
		}
		if found {
			result.SongID = existing
			result.Created = false
			return nil
		}

		song := &store.Song{
			FilePath: filePath,
			Title:    orUnknown(meta.Title),
			ArtistID: artistID,
			AlbumID:  albumID,
			GenreID:  genreID,
			CoverArt: meta.ArtworkData,
		}
		if meta.TrackNumber > 0 {
			num := meta.TrackNumber
			song.TrackNumber = &num
		}
		if meta.Duration > 0 {
			dur := meta.Duration
			song.Duration = &dur
		}

		id, err := tx.InsertSong(song)
		if err != nil {
			return err
		}
		result.SongID = id
		result.Created = true
		return nil
	})

	duration := time.Since(start)
	if err != nil {
		monitoring.RecordIngest("failed", duration)
		monitoring.RecordStoreError(string(apperrors.GetErrorType(err)))
		r.logger.Error("Catalog ingest failed",
			zap.String("file_path", filePath),
			zap.Error(err))
		return nil, err
	}

	if result.Created {
		monitoring.RecordIngest("inserted", duration)
		r.logger.Info("Song added to catalog",
			zap.Int64("song_id", result.SongID),
			zap.String("title", meta.Title),
			zap.String("artist", meta.Artist),
			zap.String("file_path", filePath))
	} else {
		monitoring.RecordIngest("duplicate", duration)
		r.logger.Debug("Song already in catalog",
			zap.Int64("song_id", result.SongID),
			zap.String("file_path", filePath))
	}
	return result, nil
}

// SongChanges describes a partial edit of a catalog entry. Nil fields are
// untouched. A new Album name re-points the song at an album under its
// (possibly updated) artist; ReleaseYear, AlbumType or TotalTracks without an
// Album name edit the song's current album, which every song on that album
// shares.
type SongChanges struct {
	Title       *string
	Artist      *string
	Genre       *string
	FilePath    *string
	Album       *string
	ReleaseYear *int
	AlbumType   *string
	TotalTracks *int
	TrackNumber *int
	Duration    *float64
	CoverArt    []byte
}

// Update applies a partial edit to a song. Artist and genre names are
// resolved through get-or-create before the song transaction runs.
func (r *Repository) Update(ctx context.Context, songID int64, changes SongChanges) error {
	update := store.SongUpdate{
		FilePath:    changes.FilePath,
		Title:       changes.Title,
		AlbumTitle:  changes.Album,
		TrackNumber: changes.TrackNumber,
		Duration:    changes.Duration,
		CoverArt:    changes.CoverArt,
		AlbumFields: store.AlbumFields{
			ReleaseYear: changes.ReleaseYear,
			AlbumType:   changes.AlbumType,
			TotalTracks: changes.TotalTracks,
		},
	}

	if changes.Artist != nil || changes.Genre != nil {
		err := r.store.WithTx(ctx, func(tx *store.Tx) error {
			if changes.Artist != nil {
				id, err := tx.GetOrCreateArtist(orUnknown(*changes.Artist))
				if err != nil {
					return err
				}
				update.ArtistID = &id
			}
			if changes.Genre != nil {
				id, err := tx.GetOrCreateGenre(orUnknown(*changes.Genre))
				if err != nil {
					return err
				}
				update.GenreID = &id
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := r.store.UpdateSong(ctx, songID, update); err != nil {
		monitoring.RecordStoreError(string(apperrors.GetErrorType(err)))
		r.logger.Error("Catalog update failed",
			zap.Int64("song_id", songID),
			zap.Error(err))
		return err
	}

	r.logger.Info("Song updated", zap.Int64("song_id", songID))
	return nil
}

// Remove deletes a song. Its album and artist are removed as well when the
// deletion leaves them without songs; genres always remain.
func (r *Repository) Remove(ctx context.Context, songID int64) error {
	if err := r.store.DeleteSong(ctx, songID); err != nil {
		if !apperrors.IsNotFound(err) {
			monitoring.RecordStoreError(string(apperrors.GetErrorType(err)))
		}
		r.logger.Error("Catalog remove failed",
			zap.Int64("song_id", songID),
			zap.Error(err))
		return err
	}

	r.logger.Info("Song removed from catalog", zap.Int64("song_id", songID))
	return nil
}

// Get returns a single song with resolved names
func (r *Repository) Get(ctx context.Context, songID int64) (*store.SongRecord, error) {
	return r.store.GetSong(ctx, songID)
}

// Query returns songs matching the given filters; nil filters return the
// whole catalog.
func (r *Repository) Query(ctx context.Context, filters map[string]interface{}) ([]*store.SongRecord, error) {
	return r.store.QuerySongs(ctx, filters)
}

// AlbumTracks returns an album's songs in track order
func (r *Repository) AlbumTracks(ctx context.Context, albumTitle, artistName string) ([]*store.SongRecord, error) {
	return r.store.AlbumSongs(ctx, albumTitle, artistName)
}

func orUnknown(name string) string {
	if name == "" {
		return UnknownName
	}
	return name
}
