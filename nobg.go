// Package nobg provides functionality for batch image background removal.
package nobg

import (
	"context"
	"image"
)

// Remover is the interface that wraps the basic Remove method.
//
// Remove receives a decoded image and returns the same picture with its
// background made transparent. Implementations are called from a single
// worker goroutine and do not need to be reentrant. Any returned error (or
// panic) fails only the current item.
type Remover interface {
	Remove(ctx context.Context, img image.Image) (image.Image, error)
}

// RemoverFunc adapts a plain function to the Remover interface.
type RemoverFunc func(ctx context.Context, img image.Image) (image.Image, error)

// Remove calls f(ctx, img).
func (f RemoverFunc) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	return f(ctx, img)
}

// Inputer is the interface that wraps the basic Next method.
//
// Next returns channel of source paths read from input. Channel closes
// when input EOF is reached.
type Inputer interface {
	Next() <-chan string
}

// Event is a notification produced by a processing run. Concrete types are
// ItemSucceeded, ItemFailed, ProgressChanged and BatchFinished.
type Event interface {
	event()
}
