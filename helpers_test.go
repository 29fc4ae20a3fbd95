package nobg_test

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/regorov/nobg"
	"github.com/stretchr/testify/require"
)

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	red   = color.NRGBA{R: 255, A: 255}
)

// solid returns w x h image filled with c, with a red square in the middle
// if the image is larger than 4x4.
func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	if w > 4 && h > 4 {
		for y := h/2 - 1; y <= h/2; y++ {
			for x := w/2 - 1; x <= w/2; x++ {
				img.SetNRGBA(x, y, red)
			}
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	require.NoError(t, png.Encode(f, solid(w, h, white)))
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// records creates n pending records backed by small png files.
func records(t *testing.T, n int) []*nobg.Record {
	t.Helper()

	dir := t.TempDir()
	out := make([]*nobg.Record, n)
	for i := range out {
		rec, err := nobg.NewRecord(writePNG(t, dir, string(rune('a'+i))+".png", 8, 8))
		require.NoError(t, err)
		out[i] = rec
	}
	return out
}

// collect drains the run's event stream.
func collect(run *nobg.Run) []nobg.Event {
	var evs []nobg.Event
	for ev := range run.Events() {
		evs = append(evs, ev)
	}
	return evs
}

func progress(evs []nobg.Event) []int {
	var out []int
	for _, ev := range evs {
		if p, ok := ev.(nobg.ProgressChanged); ok {
			out = append(out, p.Percent)
		}
	}
	return out
}

var passthrough = nobg.RemoverFunc(func(_ context.Context, img image.Image) (image.Image, error) {
	return img, nil
})
