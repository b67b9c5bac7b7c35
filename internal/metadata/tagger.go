package metadata

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

// TrackMetadata carries the tags applied to a fetched audio file and fed into
// the catalog afterwards.
type TrackMetadata struct {
	Title       string
	Artist      string
	Album       string
	Genre       string
	AlbumType   string
	Year        int
	TrackNumber int
	TotalTracks int
	Duration    float64
	ArtworkData []byte
	ArtworkMIME string
}

// Tagger writes track metadata into audio files
type Tagger struct {
	embedArtwork bool
	artworkSize  int
}

// NewTagger creates a Tagger. artworkSize bounds the longest edge of embedded
// cover art in pixels.
func NewTagger(embedArtwork bool, artworkSize int) *Tagger {
	if artworkSize <= 0 {
		artworkSize = 1200
	}
	return &Tagger{
		embedArtwork: embedArtwork,
		artworkSize:  artworkSize,
	}
}

// Apply writes metadata into an audio file, dispatching on the extension
func (t *Tagger) Apply(filePath string, meta *TrackMetadata) error {
	if meta == nil {
		return fmt.Errorf("metadata cannot be nil")
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return t.applyMP3(filePath, meta)
	case ".flac":
		return t.applyFLAC(filePath, meta)
	default:
		return fmt.Errorf("unsupported audio format: %s", ext)
	}
}

func (t *Tagger) applyMP3(filePath string, meta *TrackMetadata) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open mp3 file: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)

	if meta.Title != "" {
		tag.SetTitle(meta.Title)
	}
	if meta.Artist != "" {
		tag.SetArtist(meta.Artist)
	}
	if meta.Album != "" {
		tag.SetAlbum(meta.Album)
	}
	if meta.Genre != "" {
		tag.SetGenre(meta.Genre)
	}
	if meta.Year > 0 {
		tag.SetYear(strconv.Itoa(meta.Year))
	}

	if meta.TrackNumber > 0 {
		trackStr := strconv.Itoa(meta.TrackNumber)
		if meta.TotalTracks > 0 {
			trackStr = fmt.Sprintf("%d/%d", meta.TrackNumber, meta.TotalTracks)
		}
		tag.DeleteFrames(tag.CommonID("Track number/Position in set"))
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, trackStr)
	}

	if t.embedArtwork && len(meta.ArtworkData) > 0 {
		artwork, mime := t.prepareArtwork(meta.ArtworkData, meta.ArtworkMIME)
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    mime,
			PictureType: id3v2.PTFrontCover,
			Description: "Front Cover",
			Picture:     artwork,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save mp3 tags: %w", err)
	}
	return nil
}

func (t *Tagger) applyFLAC(filePath string, meta *TrackMetadata) error {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to parse flac file: %w", err)
	}

	var cmtBlock *flac.MetaDataBlock
	for _, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			cmtBlock = block
			break
		}
	}
	if cmtBlock == nil {
		cmtBlock = &flac.MetaDataBlock{Type: flac.VorbisComment}
		f.Meta = append(f.Meta, cmtBlock)
	}

	cmt, err := flacvorbis.ParseFromMetaDataBlock(*cmtBlock)
	if err != nil {
		cmt = flacvorbis.New()
	}

	if meta.Title != "" {
		cmt.Add("TITLE", meta.Title)
	}
	if meta.Artist != "" {
		cmt.Add("ARTIST", meta.Artist)
	}
	if meta.Album != "" {
		cmt.Add("ALBUM", meta.Album)
	}
	if meta.Genre != "" {
		cmt.Add("GENRE", meta.Genre)
	}
	if meta.Year > 0 {
		cmt.Add("DATE", strconv.Itoa(meta.Year))
	}
	if meta.TrackNumber > 0 {
		cmt.Add("TRACKNUMBER", strconv.Itoa(meta.TrackNumber))
	}
	if meta.TotalTracks > 0 {
		cmt.Add("TOTALTRACKS", strconv.Itoa(meta.TotalTracks))
	}

	res := cmt.Marshal()
	cmtBlock.Data = res.Data

	if t.embedArtwork && len(meta.ArtworkData) > 0 {
		hasPicture := false
		for _, block := range f.Meta {
			if block.Type == flac.Picture {
				hasPicture = true
				break
			}
		}
		if !hasPicture {
			artwork, mime := t.prepareArtwork(meta.ArtworkData, meta.ArtworkMIME)
			f.Meta = append(f.Meta, &flac.MetaDataBlock{
				Type: flac.Picture,
				Data: flacPictureBlock(artwork, mime),
			})
		}
	}

	if err := f.Save(filePath); err != nil {
		return fmt.Errorf("failed to save flac file: %w", err)
	}
	return nil
}

// prepareArtwork resizes cover art down to the configured edge length.
// Resize failures fall back to the original bytes.
func (t *Tagger) prepareArtwork(data []byte, mime string) ([]byte, string) {
	resized, resizedMIME, err := ResizeArtwork(data, t.artworkSize)
	if err != nil {
		if mime == "" {
			mime = "image/jpeg"
		}
		return data, mime
	}
	return resized, resizedMIME
}

// flacPictureBlock encodes a METADATA_BLOCK_PICTURE payload for a front cover.
// Width, height, depth and color count are left zero for the decoder to fill.
func flacPictureBlock(imageData []byte, mimeType string) []byte {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	description := "Front Cover"

	size := 4 + 4 + len(mimeType) + 4 + len(description) + 4*4 + 4 + len(imageData)
	data := make([]byte, 0, size)

	appendUint32 := func(v uint32) {
		data = append(data, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}

	appendUint32(3) // front cover
	appendUint32(uint32(len(mimeType)))
	data = append(data, mimeType...)
	appendUint32(uint32(len(description)))
	data = append(data, description...)
	appendUint32(0)
	appendUint32(0)
	appendUint32(0)
	appendUint32(0)
	appendUint32(uint32(len(imageData)))
	data = append(data, imageData...)

	return data
}
