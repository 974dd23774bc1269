package utils

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Import gif decoder
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ImageTypes lists the content types a thumbnail is generated for.
var ImageTypes = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
}

// MakeThumbnail decodes an image, checks its dimensions and returns a JPEG
// thumbnail fitted inside width x height.
func MakeThumbnail(data []byte, width, height, maxWidth, maxHeight int) ([]byte, error) {
	reader := bytes.NewReader(data)
	cfg, _, err := image.DecodeConfig(reader)
	if err != nil {
		return nil, fmt.Errorf("could not decode image config: %w", err)
	}
	if cfg.Width > maxWidth || cfg.Height > maxHeight {
		return nil, fmt.Errorf("image dimensions (%dx%d) exceed maximum (%dx%d)", cfg.Width, cfg.Height, maxWidth, maxHeight)
	}
	if _, err := reader.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("could not reset reader position: %w", err)
	}

	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := imaging.Fit(img, width, height, imaging.Lanczos)
	out := new(bytes.Buffer)
	if err := imaging.Encode(out, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}
