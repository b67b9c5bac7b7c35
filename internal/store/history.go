package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HistoryEntry records one fetched artifact
type HistoryEntry struct {
	ID           int64     `json:"id"`
	JobID        int64     `json:"job_id"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist,omitempty"`
	Album        string    `json:"album,omitempty"`
	FilePath     string    `json:"file_path,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	Checksum     string    `json:"checksum,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// HistoryStore manages the download history table
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a new HistoryStore
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Add records a completed fetch
func (hs *HistoryStore) Add(ctx context.Context, entry *HistoryEntry) error {
	res, err := hs.db.ExecContext(ctx, `
		INSERT INTO download_history (job_id, title, artist, album, file_path, file_size, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.JobID, entry.Title, entry.Artist, entry.Album,
		entry.FilePath, entry.FileSize, entry.Checksum,
	)
	if err != nil {
		return classifyError("failed to add history entry", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read history id: %w", err)
	}
	entry.ID = id
	return nil
}

// Recent returns the most recent entries, newest first
func (hs *HistoryStore) Recent(ctx context.Context, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := hs.db.QueryContext(ctx, `
		SELECT id, job_id, title, artist, album, file_path, file_size, checksum, downloaded_at
		FROM download_history
		ORDER BY downloaded_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, classifyError("failed to query history", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var artist, album, filePath, checksum sql.NullString
		var fileSize sql.NullInt64
		err := rows.Scan(&e.ID, &e.JobID, &e.Title, &artist, &album, &filePath, &fileSize, &checksum, &e.DownloadedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Artist = artist.String
		e.Album = album.String
		e.FilePath = filePath.String
		e.FileSize = fileSize.Int64
		e.Checksum = checksum.String
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}
