package extract

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"

	apperrors "github.com/tunevault/tunevault-go/internal/errors"
	"github.com/tunevault/tunevault-go/internal/metadata"
	"github.com/tunevault/tunevault-go/internal/monitoring"
)

const (
	fetchChunkSize = 64 * 1024
	userAgent      = "TuneVault/2.0"
)

// HTTPExtractor fetches media over plain HTTP. A URL serving JSON is treated
// as a collection manifest; anything else is a single media item. Requests
// are paced by a shared rate limiter so concurrent jobs do not hammer a
// source host.
type HTTPExtractor struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPExtractor creates an HTTPExtractor. requestsPerSecond caps outbound
// request rate across all jobs; zero disables the cap.
func NewHTTPExtractor(client *http.Client, requestsPerSecond float64, logger *zap.Logger) *HTTPExtractor {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &HTTPExtractor{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Probe resolves a source URL into a manifest. JSON responses are parsed as
// manifest documents; other content types yield a single-item manifest
// derived from the URL itself.
func (e *HTTPExtractor) Probe(ctx context.Context, sourceURL string) (*Manifest, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewCancelledError("probe cancelled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid source url: %v", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewCancelledError("probe cancelled")
		}
		return nil, apperrors.NewExtractionError("failed to probe source", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExtractionError(
			fmt.Sprintf("probe returned status %d", resp.StatusCode), nil)
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if contentType == "application/json" {
		return parseManifest(resp.Body, sourceURL)
	}

	// Direct media URL: one item, title from the URL path.
	item := MediaItem{
		URL:   sourceURL,
		Title: titleFromURL(sourceURL),
	}
	return &Manifest{Title: item.Title, Items: []MediaItem{item}}, nil
}

func parseManifest(r io.Reader, sourceURL string) (*Manifest, error) {
	var manifest Manifest
	if err := json.NewDecoder(r).Decode(&manifest); err != nil {
		return nil, apperrors.NewExtractionError("failed to parse manifest", err)
	}
	if len(manifest.Items) == 0 {
		return nil, apperrors.NewExtractionError("manifest contains no items", nil)
	}

	// Item URLs may be relative to the manifest location.
	base, err := url.Parse(sourceURL)
	if err == nil {
		for i := range manifest.Items {
			if ref, err := url.Parse(manifest.Items[i].URL); err == nil {
				manifest.Items[i].URL = base.ResolveReference(ref).String()
			}
		}
	}
	return &manifest, nil
}

// Fetch transfers one item into destDir. The media stream is checksummed
// with BLAKE2b while it is written; the sidecar and thumbnail land next to
// the media file.
func (e *HTTPExtractor) Fetch(ctx context.Context, item *MediaItem, destDir string, progress ProgressFunc) (*Artifact, error) {
	if item == nil || item.URL == "" {
		return nil, apperrors.NewValidationError("media item url is required")
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, apperrors.NewFileSystemError("failed to create destination directory", err)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewCancelledError("fetch cancelled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid media url: %v", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewCancelledError("fetch cancelled")
		}
		return nil, apperrors.NewExtractionError("failed to fetch media", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExtractionError(
			fmt.Sprintf("fetch returned status %d", resp.StatusCode), nil)
	}

	filePath := filepath.Join(destDir, fetchFileName(item, resp))
	written, checksum, err := e.streamToFile(ctx, resp.Body, filePath, resp.ContentLength, progress)
	if err != nil {
		// Partial files are removed so a retried job starts clean.
		os.Remove(filePath)
		return nil, err
	}
	monitoring.RecordFetchBytes(written)

	artifact := &Artifact{
		FilePath: filePath,
		Bytes:    written,
		Checksum: checksum,
	}

	sc := sidecarFor(item)
	if err := metadata.WriteSidecar(filePath, sc); err != nil {
		e.logger.Warn("Failed to write sidecar",
			zap.String("file_path", filePath),
			zap.Error(err))
	} else {
		artifact.SidecarPath = metadata.SidecarPath(filePath)
	}

	if item.ThumbnailURL != "" {
		thumbPath, err := e.fetchThumbnail(ctx, item.ThumbnailURL, filePath)
		if err != nil {
			e.logger.Warn("Failed to fetch thumbnail",
				zap.String("url", item.ThumbnailURL),
				zap.Error(err))
		} else {
			artifact.ThumbnailPath = thumbPath
		}
	}

	e.logger.Debug("Fetched media item",
		zap.String("url", item.URL),
		zap.String("file_path", filePath),
		zap.Int64("bytes", written))
	return artifact, nil
}

// streamToFile copies the response body in fixed-size chunks. The progress
// callback runs after every chunk and doubles as the pause/stop checkpoint:
// returning an error aborts the transfer.
func (e *HTTPExtractor) streamToFile(ctx context.Context, body io.Reader, filePath string, total int64, progress ProgressFunc) (int64, string, error) {
	out, err := os.Create(filePath)
	if err != nil {
		return 0, "", apperrors.NewFileSystemError("failed to create media file", err)
	}
	defer out.Close()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create hasher: %w", err)
	}

	dst := io.MultiWriter(out, hasher)
	buf := make([]byte, fetchChunkSize)
	var written int64

	for {
		if ctx.Err() != nil {
			return written, "", apperrors.NewCancelledError("fetch cancelled")
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, "", apperrors.NewFileSystemError("failed to write media file", err)
			}
			written += int64(n)
			if progress != nil {
				if err := progress(written, total); err != nil {
					return written, "", err
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, "", apperrors.NewExtractionError("media stream interrupted", readErr)
		}
	}

	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (e *HTTPExtractor) fetchThumbnail(ctx context.Context, thumbURL, mediaPath string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", apperrors.NewCancelledError("thumbnail fetch cancelled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbURL, nil)
	if err != nil {
		return "", apperrors.NewValidationError(fmt.Sprintf("invalid thumbnail url: %v", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", apperrors.NewExtractionError("failed to fetch thumbnail", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewExtractionError(
			fmt.Sprintf("thumbnail fetch returned status %d", resp.StatusCode), nil)
	}

	ext := ".jpg"
	if thumbExt := path.Ext(thumbURL); thumbExt == ".png" || thumbExt == ".webp" {
		ext = thumbExt
	}
	thumbPath := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ext

	out, err := os.Create(thumbPath)
	if err != nil {
		return "", apperrors.NewFileSystemError("failed to create thumbnail file", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(thumbPath)
		return "", apperrors.NewFileSystemError("failed to write thumbnail", err)
	}
	return thumbPath, nil
}

func sidecarFor(item *MediaItem) *metadata.Sidecar {
	return &metadata.Sidecar{
		Title:       item.Title,
		Artist:      item.Artist,
		Album:       item.Album,
		Genre:       item.Genre,
		ReleaseDate: item.ReleaseDate,
		AlbumType:   item.AlbumType,
		TrackNumber: item.TrackNumber,
		TotalTracks: item.TotalTracks,
		Duration:    item.Duration,
		Thumbnail:   item.ThumbnailURL,
		SourceURL:   item.URL,
	}
}

// fetchFileName derives the on-disk name for a fetched item. The item title
// wins when present; the URL basename is the fallback. The extension comes
// from the URL, then the response content type.
func fetchFileName(item *MediaItem, resp *http.Response) string {
	name := item.Title
	urlBase := ""
	if u, err := url.Parse(item.URL); err == nil {
		urlBase = path.Base(u.Path)
	}
	if name == "" {
		name = strings.TrimSuffix(urlBase, path.Ext(urlBase))
	}
	if name == "" || name == "." || name == "/" {
		name = "media"
	}

	ext := path.Ext(urlBase)
	if ext == "" {
		contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		switch contentType {
		case "audio/mpeg":
			ext = ".mp3"
		case "audio/flac", "audio/x-flac":
			ext = ".flac"
		case "video/mp4":
			ext = ".mp4"
		default:
			ext = ".bin"
		}
	}

	return sanitizeFileName(name) + ext
}

// sanitizeFileName strips characters that are unsafe in file names
func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	sanitized := strings.TrimSpace(replacer.Replace(name))
	if sanitized == "" {
		return "media"
	}
	return sanitized
}

// titleFromURL derives a display title from a direct media URL
func titleFromURL(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}
