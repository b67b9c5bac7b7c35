package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/tunevault/tunevault-go/internal/errors"
)

// Song represents a row in the songs table
type Song struct {
	ID          int64    `json:"id"`
	FilePath    string   `json:"file_path"`
	Title       string   `json:"title"`
	ArtistID    int64    `json:"artist_id"`
	AlbumID     int64    `json:"album_id"`
	GenreID     int64    `json:"genre_id"`
	CoverArt    []byte   `json:"-"`
	TrackNumber *int     `json:"track_number,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
}

// AlbumFields holds the optional album columns. The first writer of an album
// row wins; later get-or-create calls reuse the existing row unchanged.
type AlbumFields struct {
	ReleaseYear *int
	AlbumType   *string
	TotalTracks *int
}

// SongUpdate describes a partial update of a song. Nil fields are left
// untouched. AlbumTitle re-points the song at a (possibly new) album under the
// song's current artist; ReleaseYear/AlbumType/TotalTracks without an
// AlbumTitle mutate the song's current album row in place — that row is shared
// by every song on the album.
type SongUpdate struct {
	FilePath    *string
	Title       *string
	ArtistID    *int64
	GenreID     *int64
	AlbumTitle  *string
	AlbumFields AlbumFields
	TrackNumber *int
	Duration    *float64
	CoverArt    []byte
}

// SongRecord is the joined view of a song with its resolved names
type SongRecord struct {
	ID          int64    `json:"id"`
	FilePath    string   `json:"file_path"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	Album       string   `json:"album"`
	Genre       string   `json:"genre"`
	CoverArt    []byte   `json:"-"`
	TrackNumber *int     `json:"track_number,omitempty"`
	ReleaseYear *int     `json:"release_year,omitempty"`
	AlbumType   *string  `json:"album_type,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	TotalTracks *int     `json:"total_tracks,omitempty"`
}

// MetadataStore manages the normalized catalog tables
type MetadataStore struct {
	db *sql.DB
}

// NewMetadataStore creates a new MetadataStore
func NewMetadataStore(db *sql.DB) *MetadataStore {
	return &MetadataStore{db: db}
}

// DB exposes the underlying handle for health checks
func (ms *MetadataStore) DB() *sql.DB {
	return ms.db
}

// Tx wraps a single catalog transaction. All multi-statement mutations run
// through one Tx so they commit or roll back as a unit.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a transaction. The transaction is rolled back on any
// error (including a panic unwinding through fn) and committed otherwise.
func (ms *MetadataStore) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := ms.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return classifyError("transaction aborted", err)
	}

	if err := tx.Commit(); err != nil {
		return classifyError("failed to commit transaction", err)
	}
	return nil
}

// GetOrCreateArtist resolves an artist name to its id, creating the row if
// absent. Concurrent duplicate inserts are tolerated: the insert is a no-op
// when the name exists and the re-select returns the surviving row.
func (t *Tx) GetOrCreateArtist(name string) (int64, error) {
	if _, err := t.tx.Exec("INSERT OR IGNORE INTO artists (name) VALUES (?)", name); err != nil {
		return 0, fmt.Errorf("failed to insert artist: %w", err)
	}

	var id int64
	if err := t.tx.QueryRow("SELECT id FROM artists WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to select artist %q: %w", name, err)
	}
	return id, nil
}

// GetOrCreateGenre resolves a genre name to its id, creating the row if absent
func (t *Tx) GetOrCreateGenre(name string) (int64, error) {
	if _, err := t.tx.Exec("INSERT OR IGNORE INTO genres (name) VALUES (?)", name); err != nil {
		return 0, fmt.Errorf("failed to insert genre: %w", err)
	}

	var id int64
	if err := t.tx.QueryRow("SELECT id FROM genres WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to select genre %q: %w", name, err)
	}
	return id, nil
}

// GetOrCreateAlbum resolves (title, artistID) to an album id, creating the row
// if absent. Optional fields are only written on create; an existing row is
// reused as-is.
func (t *Tx) GetOrCreateAlbum(title string, artistID int64, fields AlbumFields) (int64, error) {
	_, err := t.tx.Exec(
		"INSERT OR IGNORE INTO albums (title, artist_id, release_year, album_type, total_tracks) VALUES (?, ?, ?, ?, ?)",
		title, artistID, fields.ReleaseYear, fields.AlbumType, fields.TotalTracks,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert album: %w", err)
	}

	var id int64
	if err := t.tx.QueryRow("SELECT id FROM albums WHERE title = ? AND artist_id = ?", title, artistID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to select album %q: %w", title, err)
	}
	return id, nil
}

// FindSong returns the id of an existing song matching the file path or the
// title. A match on either is treated as "already present".
func (t *Tx) FindSong(filePath, title string) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow("SELECT id FROM songs WHERE file_path = ? OR title = ?", filePath, title).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up song: %w", err)
	}
	return id, true, nil
}

// InsertSong inserts a song row. Callers must have resolved the foreign keys
// through the get-or-create methods first.
func (t *Tx) InsertSong(song *Song) (int64, error) {
	res, err := t.tx.Exec(`
		INSERT INTO songs (file_path, title, artist_id, album_id, genre_id, cover_art, track_number, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		song.FilePath, song.Title, song.ArtistID, song.AlbumID, song.GenreID,
		song.CoverArt, song.TrackNumber, song.Duration,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert song: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted song id: %w", err)
	}
	song.ID = id
	return id, nil
}

// InsertSong performs the duplicate check and insert in one transaction.
// When a song with the same file path or title already exists, the existing id
// is returned with created=false; callers must treat that as success.
func (ms *MetadataStore) InsertSong(ctx context.Context, song *Song) (int64, bool, error) {
	var id int64
	var created bool

	err := ms.WithTx(ctx, func(t *Tx) error {
		existing, found, err := t.FindSong(song.FilePath, song.Title)
		if err != nil {
			return err
		}
		if found {
			id = existing
			created = false
			return nil
		}

		newID, err := t.InsertSong(song)
		if err != nil {
			return err
		}
		id = newID
		created = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return id, created, nil
}

// UpdateSong applies a partial update in one transaction. A new album title
// triggers get-or-create under the song's current artist (route a); album
// field changes without a title mutate the current album row in place
// (route b), which is visible through every song sharing that album.
func (ms *MetadataStore) UpdateSong(ctx context.Context, id int64, update SongUpdate) error {
	return ms.WithTx(ctx, func(t *Tx) error {
		var currentArtistID, currentAlbumID int64
		err := t.tx.QueryRow("SELECT artist_id, album_id FROM songs WHERE id = ?", id).
			Scan(&currentArtistID, &currentAlbumID)
		if err == sql.ErrNoRows {
			return apperrors.NewNotFoundError(fmt.Sprintf("song %d not found", id))
		}
		if err != nil {
			return fmt.Errorf("failed to load song %d: %w", id, err)
		}

		setClauses := make([]string, 0, 8)
		args := make([]interface{}, 0, 8)
		addSet := func(column string, value interface{}) {
			setClauses = append(setClauses, column+" = ?")
			args = append(args, value)
		}

		if update.FilePath != nil {
			addSet("file_path", *update.FilePath)
		}
		if update.Title != nil {
			addSet("title", *update.Title)
		}
		if update.ArtistID != nil {
			addSet("artist_id", *update.ArtistID)
			currentArtistID = *update.ArtistID
		}
		if update.GenreID != nil {
			addSet("genre_id", *update.GenreID)
		}
		if update.TrackNumber != nil {
			addSet("track_number", *update.TrackNumber)
		}
		if update.Duration != nil {
			addSet("duration", *update.Duration)
		}
		if update.CoverArt != nil {
			addSet("cover_art", update.CoverArt)
		}

		if update.AlbumTitle != nil {
			// Route a: re-point the song at a (possibly new) album under its
			// current artist.
			albumID, err := t.GetOrCreateAlbum(*update.AlbumTitle, currentArtistID, update.AlbumFields)
			if err != nil {
				return err
			}
			addSet("album_id", albumID)
		} else if update.AlbumFields.ReleaseYear != nil || update.AlbumFields.AlbumType != nil || update.AlbumFields.TotalTracks != nil {
			// Route b: mutate the shared album row in place.
			albumSet := make([]string, 0, 3)
			albumArgs := make([]interface{}, 0, 4)
			if update.AlbumFields.ReleaseYear != nil {
				albumSet = append(albumSet, "release_year = ?")
				albumArgs = append(albumArgs, *update.AlbumFields.ReleaseYear)
			}
			if update.AlbumFields.AlbumType != nil {
				albumSet = append(albumSet, "album_type = ?")
				albumArgs = append(albumArgs, *update.AlbumFields.AlbumType)
			}
			if update.AlbumFields.TotalTracks != nil {
				albumSet = append(albumSet, "total_tracks = ?")
				albumArgs = append(albumArgs, *update.AlbumFields.TotalTracks)
			}
			albumArgs = append(albumArgs, currentAlbumID)
			query := "UPDATE albums SET " + strings.Join(albumSet, ", ") + " WHERE id = ?"
			if _, err := t.tx.Exec(query, albumArgs...); err != nil {
				return fmt.Errorf("failed to update album %d: %w", currentAlbumID, err)
			}
		}

		if len(setClauses) == 0 {
			return nil
		}

		args = append(args, id)
		query := "UPDATE songs SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
		if _, err := t.tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to update song %d: %w", id, err)
		}
		return nil
	})
}

// DeleteSong removes a song and cascades to its album and artist when either
// is left without any songs. The album and artist checks are independent.
// Genres are a shared taxonomy and are never cascade-deleted.
func (ms *MetadataStore) DeleteSong(ctx context.Context, id int64) error {
	return ms.WithTx(ctx, func(t *Tx) error {
		var albumID, artistID int64
		err := t.tx.QueryRow("SELECT album_id, artist_id FROM songs WHERE id = ?", id).
			Scan(&albumID, &artistID)
		if err == sql.ErrNoRows {
			return apperrors.NewNotFoundError(fmt.Sprintf("song %d not found", id))
		}
		if err != nil {
			return fmt.Errorf("failed to load song %d: %w", id, err)
		}

		if _, err := t.tx.Exec("DELETE FROM songs WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete song %d: %w", id, err)
		}

		var albumSongs int
		if err := t.tx.QueryRow("SELECT COUNT(*) FROM songs WHERE album_id = ?", albumID).Scan(&albumSongs); err != nil {
			return fmt.Errorf("failed to count album songs: %w", err)
		}
		if albumSongs == 0 {
			if _, err := t.tx.Exec("DELETE FROM albums WHERE id = ?", albumID); err != nil {
				return fmt.Errorf("failed to delete orphaned album %d: %w", albumID, err)
			}
		}

		var artistSongs int
		if err := t.tx.QueryRow("SELECT COUNT(*) FROM songs WHERE artist_id = ?", artistID).Scan(&artistSongs); err != nil {
			return fmt.Errorf("failed to count artist songs: %w", err)
		}
		if artistSongs == 0 {
			if _, err := t.tx.Exec("DELETE FROM artists WHERE id = ?", artistID); err != nil {
				return fmt.Errorf("failed to delete orphaned artist %d: %w", artistID, err)
			}
		}

		return nil
	})
}

// songFilterColumns maps filter keys onto their table-qualified columns
var songFilterColumns = map[string]string{
	"title":        "s.title",
	"file_path":    "s.file_path",
	"track_number": "s.track_number",
	"duration":     "s.duration",
	"artist":       "a.name",
	"album":        "al.title",
	"release_year": "al.release_year",
	"album_type":   "al.album_type",
	"genre":        "g.name",
}

const songSelect = `
	SELECT s.id, s.file_path, s.title, a.name, al.title, g.name,
	       s.cover_art, s.track_number, al.release_year, al.album_type,
	       s.duration, al.total_tracks
	FROM songs s
	JOIN artists a ON s.artist_id = a.id
	JOIN albums al ON s.album_id = al.id
	JOIN genres g ON s.genre_id = g.id`

// QuerySongs returns the joined catalog, optionally narrowed by filters.
// Filter keys route to the owning table; unknown keys are rejected.
func (ms *MetadataStore) QuerySongs(ctx context.Context, filters map[string]interface{}) ([]*SongRecord, error) {
	query := songSelect
	args := make([]interface{}, 0, len(filters))

	if len(filters) > 0 {
		clauses := make([]string, 0, len(filters))
		for key, value := range filters {
			column, ok := songFilterColumns[key]
			if !ok {
				return nil, apperrors.NewValidationError(fmt.Sprintf("unknown filter key: %s", key))
			}
			clauses = append(clauses, column+" = ?")
			args = append(args, value)
		}
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := ms.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError("failed to query songs", err)
	}
	defer rows.Close()

	return scanSongRecords(rows)
}

// GetSong returns a single joined record by song id
func (ms *MetadataStore) GetSong(ctx context.Context, id int64) (*SongRecord, error) {
	rows, err := ms.db.QueryContext(ctx, songSelect+" WHERE s.id = ?", id)
	if err != nil {
		return nil, classifyError("failed to query song", err)
	}
	defer rows.Close()

	records, err := scanSongRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("song %d not found", id))
	}
	return records[0], nil
}

// AlbumSongs returns an album's songs in track order. The artist name narrows
// the lookup when the same album title exists under several artists.
func (ms *MetadataStore) AlbumSongs(ctx context.Context, albumTitle, artistName string) ([]*SongRecord, error) {
	query := songSelect + " WHERE al.title = ?"
	args := []interface{}{albumTitle}

	if artistName != "" {
		query += " AND a.name = ?"
		args = append(args, artistName)
	}
	query += " ORDER BY s.track_number ASC"

	rows, err := ms.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError("failed to query album songs", err)
	}
	defer rows.Close()

	return scanSongRecords(rows)
}

// CountSongs returns the number of songs in the catalog
func (ms *MetadataStore) CountSongs(ctx context.Context) (int, error) {
	var count int
	if err := ms.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM songs").Scan(&count); err != nil {
		return 0, classifyError("failed to count songs", err)
	}
	return count, nil
}

func scanSongRecords(rows *sql.Rows) ([]*SongRecord, error) {
	var records []*SongRecord
	for rows.Next() {
		var rec SongRecord
		var trackNumber, releaseYear, totalTracks sql.NullInt64
		var albumType sql.NullString
		var duration sql.NullFloat64

		err := rows.Scan(
			&rec.ID, &rec.FilePath, &rec.Title, &rec.Artist, &rec.Album, &rec.Genre,
			&rec.CoverArt, &trackNumber, &releaseYear, &albumType, &duration, &totalTracks,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song record: %w", err)
		}

		if trackNumber.Valid {
			v := int(trackNumber.Int64)
			rec.TrackNumber = &v
		}
		if releaseYear.Valid {
			v := int(releaseYear.Int64)
			rec.ReleaseYear = &v
		}
		if totalTracks.Valid {
			v := int(totalTracks.Int64)
			rec.TotalTracks = &v
		}
		if albumType.Valid {
			rec.AlbumType = &albumType.String
		}
		if duration.Valid {
			rec.Duration = &duration.Float64
		}

		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate song records: %w", err)
	}
	return records, nil
}
