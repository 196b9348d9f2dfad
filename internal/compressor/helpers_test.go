package compressor

import (
	"image"
	"image/color"
	"math/rand"
	"path/filepath"
	"testing"

	"imgpress/internal/hoststats"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// gradient returns a w x h image with smooth content.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	return img
}

// noise returns a w x h image of random pixels, which JPEG compresses poorly.
func noise(w, h int) *image.NRGBA {
	r := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.Intn(256))
	}
	return img
}

// writeImage saves img under dir; the extension selects the codec.
func writeImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
	return path
}

func newTestCompressor(t *testing.T, opts ...Option) (*DefaultCompressor, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	host := hoststats.Static{Stats: hoststats.Stats{AvailableMB: 4096, CPUCores: 4}}
	return NewDefaultCompressor(log, host, opts...), hook
}
