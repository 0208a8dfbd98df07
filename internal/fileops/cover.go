// file: internal/fileops/cover.go
// version: 1.0.0
// guid: 3a5b7c9d-1e3f-4a5b-7c9d-1e3f5a7b9c1d

package fileops

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// maxCoverBytes is the size budget for a placed cover.jpg. Kobo
	// devices choke on oversized covers during sync.
	maxCoverBytes = 200 * 1024

	// minCoverWidth is the floor below which we stop shrinking and
	// accept whatever size the encode produces.
	minCoverWidth = 200

	coverJPEGQuality = 85
)

// FitCover returns cover image data within the size budget. Data
// already under budget is returned unchanged; larger images are
// downscaled in steps and re-encoded as JPEG until the output fits or
// the width floor is reached. PNG input is accepted and converted.
func FitCover(data []byte) ([]byte, error) {
	if len(data) <= maxCoverBytes {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover image: %w", err)
	}

	encoded, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}

	for len(encoded) > maxCoverBytes {
		bounds := img.Bounds()
		width := bounds.Dx() * 3 / 4
		height := bounds.Dy() * 3 / 4
		if width < minCoverWidth {
			break
		}

		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
		img = scaled

		encoded, err = encodeJPEG(img)
		if err != nil {
			return nil, err
		}
	}

	return encoded, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: coverJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode cover image: %w", err)
	}
	return buf.Bytes(), nil
}
