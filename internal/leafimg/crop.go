package leafimg

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/nabta-labs/leafscope/internal/models"
)

// Decode parses raw image bytes (JPEG or PNG) into an image.Image.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ExtractRegion crops the sub-rectangle [x1,y1,x2,y2) of img and encodes
// it as a maximum-quality JPEG. The crop is deterministic for identical
// inputs; the extracted dimensions are exactly (x2-x1, y2-y1).
func ExtractRegion(img image.Image, box models.BoundingBox) ([]byte, error) {
	if !box.Valid() {
		return nil, fmt.Errorf("invalid region: x2 must be > x1 and y2 must be > y1, got (%d,%d)-(%d,%d)",
			box.X1, box.Y1, box.X2, box.Y2)
	}

	bounds := img.Bounds()
	if box.X1 < bounds.Min.X || box.Y1 < bounds.Min.Y || box.X2 > bounds.Max.X || box.Y2 > bounds.Max.Y {
		return nil, fmt.Errorf("region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			box.X1, box.Y1, box.X2, box.Y2, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}

	cropped := imaging.Crop(img, image.Rect(box.X1, box.Y1, box.X2, box.Y2))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(100)); err != nil {
		return nil, fmt.Errorf("failed to encode region: %w", err)
	}

	return buf.Bytes(), nil
}
