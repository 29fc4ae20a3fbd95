package nobg

import (
	"context"
	"image"
	"image/draw"
)

// DefaultTolerance is the default maximum per-channel difference between a
// pixel and the key color for the pixel to be treated as background.
const DefaultTolerance = 24

// KeyRemover removes uniform backgrounds. The key color is the mean of the
// four corner pixels; every pixel within Tolerance of it becomes fully
// transparent. It is a local stand-in for a segmentation model and works
// for product shots on plain backdrops.
type KeyRemover struct {
	Tolerance uint8
}

// NewKeyRemover returns KeyRemover instance. If tolerance is 0,
// DefaultTolerance is assigned.
func NewKeyRemover(tolerance uint8) *KeyRemover {
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}
	return &KeyRemover{Tolerance: tolerance}
}

// Remove implements interface Remover.
func (kr *KeyRemover) Remove(ctx context.Context, src image.Image) (image.Image, error) {
	// copy, the source image must stay untouched.
	b := src.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)

	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return img, nil
	}

	key := KeyColor(img)

	// Pix holds the image's pixels, in R, G, B, A order.
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			c := ToRGB(uint32(row[i]), uint32(row[i+1]), uint32(row[i+2]))
			if distance(c, key) <= kr.Tolerance {
				row[i+3] = 0
			}
		}
	}
	return img, nil
}

// KeyColor returns mean color of the four corner pixels.
func KeyColor(img *image.NRGBA) RGB {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	corners := [4]image.Point{{0, 0}, {w - 1, 0}, {0, h - 1}, {w - 1, h - 1}}

	var r, g, b uint32
	for _, p := range corners {
		off := img.PixOffset(p.X+img.Rect.Min.X, p.Y+img.Rect.Min.Y)
		r += uint32(img.Pix[off])
		g += uint32(img.Pix[off+1])
		b += uint32(img.Pix[off+2])
	}
	return ToRGB(r/4, g/4, b/4)
}
