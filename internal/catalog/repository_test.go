package catalog

import (
	"context"
	"path/filepath"
	"testing"

	apperrors "github.com/tunevault/tunevault-go/internal/errors"
	"github.com/tunevault/tunevault-go/internal/metadata"
	"github.com/tunevault/tunevault-go/internal/store"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := store.InitDB(filepath.Join(t.TempDir(), "catalog.db"), 4)
	if err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(store.NewMetadataStore(db), nil)
}

func TestIngest_CreatesFullGraph(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	result, err := repo.Ingest(ctx, "/music/track.mp3", &metadata.TrackMetadata{
		Title:       "So What",
		Artist:      "Miles Davis",
		Album:       "Kind of Blue",
		Genre:       "Jazz",
		Year:        1959,
		AlbumType:   "studio",
		TrackNumber: 1,
		Duration:    545.0,
	})
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}
	if !result.Created {
		t.Error("Expected Created=true for first ingest")
	}

	rec, err := repo.Get(ctx, result.SongID)
	if err != nil {
		t.Fatalf("Failed to get song: %v", err)
	}
	if rec.Artist != "Miles Davis" || rec.Album != "Kind of Blue" || rec.Genre != "Jazz" {
		t.Errorf("Unexpected resolved names: %+v", rec)
	}
	if rec.ReleaseYear == nil || *rec.ReleaseYear != 1959 {
		t.Errorf("Expected release year 1959, got %v", rec.ReleaseYear)
	}
	if rec.AlbumType == nil || *rec.AlbumType != "studio" {
		t.Errorf("Expected album type studio, got %v", rec.AlbumType)
	}
}

func TestIngest_IsIdempotent(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	meta := &metadata.TrackMetadata{Title: "Track", Artist: "Artist", Album: "Album", Genre: "Rock"}

	first, err := repo.Ingest(ctx, "/music/track.mp3", meta)
	if err != nil {
		t.Fatalf("Failed first ingest: %v", err)
	}
	second, err := repo.Ingest(ctx, "/music/track.mp3", meta)
	if err != nil {
		t.Fatalf("Expected duplicate ingest to succeed, got %v", err)
	}

	if second.Created {
		t.Error("Expected Created=false for duplicate ingest")
	}
	if second.SongID != first.SongID {
		t.Errorf("Expected same song id, got %d and %d", first.SongID, second.SongID)
	}

	songs, err := repo.Query(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(songs) != 1 {
		t.Errorf("Expected 1 song after duplicate ingest, got %d", len(songs))
	}
}

func TestIngest_MissingFieldsFallBackToUnknown(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	result, err := repo.Ingest(ctx, "/music/mystery.mp3", &metadata.TrackMetadata{Title: "Mystery"})
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}

	rec, err := repo.Get(ctx, result.SongID)
	if err != nil {
		t.Fatalf("Failed to get song: %v", err)
	}
	if rec.Artist != UnknownName || rec.Album != UnknownName || rec.Genre != UnknownName {
		t.Errorf("Expected Unknown placeholders, got %+v", rec)
	}
}

func TestIngest_Validation(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	if _, err := repo.Ingest(ctx, "", &metadata.TrackMetadata{Title: "x"}); err == nil {
		t.Error("Expected error for empty file path")
	}
	if _, err := repo.Ingest(ctx, "/music/x.mp3", nil); err == nil {
		t.Error("Expected error for nil metadata")
	}
}

func TestUpdate_AlbumRename(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	result, err := repo.Ingest(ctx, "/music/a.mp3", &metadata.TrackMetadata{
		Title: "Song A", Artist: "Artist", Album: "Old Album", Genre: "Rock",
	})
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}

	newAlbum := "Remaster"
	year := 2024
	if err := repo.Update(ctx, result.SongID, SongChanges{Album: &newAlbum, ReleaseYear: &year}); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	rec, err := repo.Get(ctx, result.SongID)
	if err != nil {
		t.Fatalf("Failed to get song: %v", err)
	}
	if rec.Album != "Remaster" {
		t.Errorf("Expected album Remaster, got %s", rec.Album)
	}
	if rec.ReleaseYear == nil || *rec.ReleaseYear != 2024 {
		t.Errorf("Expected release year 2024, got %v", rec.ReleaseYear)
	}
}

func TestUpdate_SharedAlbumYear(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	metaA := &metadata.TrackMetadata{Title: "Song A", Artist: "Artist", Album: "Album", Genre: "Rock"}
	metaB := &metadata.TrackMetadata{Title: "Song B", Artist: "Artist", Album: "Album", Genre: "Rock"}
	resA, _ := repo.Ingest(ctx, "/music/a.mp3", metaA)
	resB, err := repo.Ingest(ctx, "/music/b.mp3", metaB)
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}

	year := 1973
	if err := repo.Update(ctx, resA.SongID, SongChanges{ReleaseYear: &year}); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	recB, err := repo.Get(ctx, resB.SongID)
	if err != nil {
		t.Fatalf("Failed to get song B: %v", err)
	}
	if recB.ReleaseYear == nil || *recB.ReleaseYear != 1973 {
		t.Errorf("Expected shared release year 1973 visible via song B, got %v", recB.ReleaseYear)
	}
}

func TestUpdate_ArtistByName(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	result, err := repo.Ingest(ctx, "/music/a.mp3", &metadata.TrackMetadata{
		Title: "Song A", Artist: "Wrong Artist", Album: "Album", Genre: "Rock",
	})
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}

	artist := "Right Artist"
	if err := repo.Update(ctx, result.SongID, SongChanges{Artist: &artist}); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	rec, err := repo.Get(ctx, result.SongID)
	if err != nil {
		t.Fatalf("Failed to get song: %v", err)
	}
	if rec.Artist != "Right Artist" {
		t.Errorf("Expected artist Right Artist, got %s", rec.Artist)
	}
}

func TestRemove_Cascades(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	result, err := repo.Ingest(ctx, "/music/only.mp3", &metadata.TrackMetadata{
		Title: "Only Song", Artist: "Solo", Album: "Solo Album", Genre: "Folk",
	})
	if err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}

	if err := repo.Remove(ctx, result.SongID); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}

	if _, err := repo.Get(ctx, result.SongID); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not found after removal, got %v", err)
	}

	// The orphaned artist name must be reusable as a fresh row.
	again, err := repo.Ingest(ctx, "/music/only.mp3", &metadata.TrackMetadata{
		Title: "Only Song", Artist: "Solo", Album: "Solo Album", Genre: "Folk",
	})
	if err != nil {
		t.Fatalf("Failed to re-ingest after removal: %v", err)
	}
	if !again.Created {
		t.Error("Expected re-ingest after removal to create a new row")
	}
}

func TestRemove_NotFound(t *testing.T) {
	repo := setupRepository(t)

	err := repo.Remove(context.Background(), 424242)
	if !apperrors.IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestAlbumTracks(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	for i, title := range []string{"One", "Two", "Three"} {
		_, err := repo.Ingest(ctx, "/music/"+title+".mp3", &metadata.TrackMetadata{
			Title: title, Artist: "Artist", Album: "Album", Genre: "Rock",
			TrackNumber: 3 - i,
		})
		if err != nil {
			t.Fatalf("Failed to ingest %s: %v", title, err)
		}
	}

	tracks, err := repo.AlbumTracks(ctx, "Album", "Artist")
	if err != nil {
		t.Fatalf("Failed to list album tracks: %v", err)
	}
	if len(tracks) != 3 {
		t.Fatalf("Expected 3 tracks, got %d", len(tracks))
	}
	if tracks[0].Title != "Three" || tracks[2].Title != "One" {
		t.Errorf("Expected track order Three, Two, One; got %s..%s", tracks[0].Title, tracks[2].Title)
	}
}
