package leafimg

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/nabta-labs/leafscope/internal/models"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const strokeWidth = 6

// BoxColor returns the outline color for region i. Hues step around the
// wheel by the golden angle so neighboring boxes stay distinguishable;
// the first region gets the dashboard green.
func BoxColor(i int) color.NRGBA {
	hue := float64((140 + i*137) % 360)
	c := colorful.Hsv(hue, 0.78, 0.85)
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// Annotate draws every bounding box onto a copy of the source image and
// encodes the result as PNG. Boxes are outlined with a 6px stroke and
// labeled with their 1-based region number.
func Annotate(img image.Image, boxes []models.BoundingBox) ([]byte, error) {
	out := imaging.Clone(img)

	for i, box := range boxes {
		if !box.Valid() {
			continue
		}
		col := BoxColor(i)
		strokeRect(out, box, col)
		drawLabel(out, box.X1+strokeWidth+2, box.Y1+strokeWidth+14, fmt.Sprintf("%d", i+1), col)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}

	return buf.Bytes(), nil
}

// strokeRect outlines box on dst, clipped to the image bounds.
func strokeRect(dst *image.NRGBA, box models.BoundingBox, col color.NRGBA) {
	bounds := dst.Bounds()

	set := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			dst.SetNRGBA(x, y, col)
		}
	}

	for t := 0; t < strokeWidth; t++ {
		for x := box.X1 - t; x <= box.X2+t; x++ {
			set(x, box.Y1-t)
			set(x, box.Y2+t)
		}
		for y := box.Y1 - t; y <= box.Y2+t; y++ {
			set(box.X1-t, y)
			set(box.X2+t, y)
		}
	}
}

func drawLabel(dst *image.NRGBA, x, y int, label string, col color.NRGBA) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
}
