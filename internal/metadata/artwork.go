package metadata

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// ResizeArtwork scales cover art so its longest edge is at most maxEdge
// pixels, re-encoding as JPEG. Images already within bounds are re-encoded
// unchanged so the stored blob format is uniform.
func ResizeArtwork(data []byte, maxEdge int) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode artwork: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if maxEdge > 0 && (width > maxEdge || height > maxEdge) {
		if width >= height {
			img = resize.Resize(uint(maxEdge), 0, img, resize.Lanczos3)
		} else {
			img = resize.Resize(0, uint(maxEdge), img, resize.Lanczos3)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, "", fmt.Errorf("failed to encode artwork: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}
