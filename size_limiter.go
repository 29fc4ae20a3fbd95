package nobg

import (
	"context"
	"image"

	"github.com/nfnt/resize"
)

// SizeLimiter downsizes images whose longest edge exceeds MaxSize before
// passing them to the wrapped Remover. Segmentation models work on a fixed
// input size, large photos only cost time.
type SizeLimiter struct {
	next    Remover
	MaxSize int
}

// NewSizeLimiter wraps r. If maxSize <= 0 images are passed through as-is.
func NewSizeLimiter(r Remover, maxSize int) *SizeLimiter {
	return &SizeLimiter{next: r, MaxSize: maxSize}
}

// Remove implements interface Remover.
func (sl *SizeLimiter) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	return sl.next.Remove(ctx, resizeWithinMax(img, sl.MaxSize))
}

// resizeWithinMax scales img so its longest edge is at most maxSize,
// keeping aspect ratio.
func resizeWithinMax(img image.Image, maxSize int) image.Image {
	if maxSize <= 0 {
		return img
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	longest := max(w, h)
	if longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	return resize.Resize(uint(nw), uint(nh), img, resize.Lanczos3)
}
