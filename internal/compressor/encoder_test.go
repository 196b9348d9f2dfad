package compressor

import (
	"bytes"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestEncodeJPEG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.jpeg")
	size, err := Encode(gradient(50, 20), out, FormatJPEG, 75, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != size {
		t.Fatalf("returned size %d, file size %d", size, info.Size())
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 50 || b.Dy() != 20 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestEncodeJPEGQualityAffectsSize(t *testing.T) {
	dir := t.TempDir()
	src := noise(64, 64)
	low, err := Encode(src, filepath.Join(dir, "low.jpeg"), FormatJPEG, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	high, err := Encode(src, filepath.Join(dir, "high.jpeg"), FormatJPEG, 95, nil)
	if err != nil {
		t.Fatal(err)
	}
	if low >= high {
		t.Fatalf("quality 10 size %d >= quality 95 size %d", low, high)
	}
}

func TestEncodePNGIgnoresQuality(t *testing.T) {
	dir := t.TempDir()
	src := gradient(32, 32)
	a, err := Encode(src, filepath.Join(dir, "a.png"), FormatPNG, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(src, filepath.Join(dir, "b.png"), FormatPNG, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("PNG sizes differ by quality: %d vs %d", a, b)
	}
}

func TestEncodeUnsupportedFormatCreatesNothing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bmp")
	_, err := Encode(gradient(4, 4), out, Format("bmp"), 80, nil)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("output file exists after unsupported format")
	}
}

func TestEncodeCreateFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "no", "such", "dir", "out.png")
	_, err := Encode(gradient(4, 4), out, FormatPNG, 80, nil)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
}

func TestEncodeTargetSize(t *testing.T) {
	dir := t.TempDir()
	src := noise(96, 96)

	full, err := Encode(src, filepath.Join(dir, "full.jpeg"), FormatJPEG, 95, nil)
	if err != nil {
		t.Fatal(err)
	}

	var q1 bytes.Buffer
	if err := imaging.Encode(&q1, src, imaging.JPEG, imaging.JPEGQuality(1)); err != nil {
		t.Fatal(err)
	}

	targetKB := int(full/1024) / 2
	if targetKB < 1 {
		targetKB = 1
	}
	fitted, err := Encode(src, filepath.Join(dir, "fitted.jpeg"), FormatJPEG, 95, &targetKB)
	if err != nil {
		t.Fatal(err)
	}

	if fitted >= full {
		t.Fatalf("fitted size %d not smaller than full size %d", fitted, full)
	}
	limit := int64(targetKB) * 1024
	if int64(q1.Len()) <= limit && fitted > limit {
		t.Fatalf("fitted size %d exceeds target %d", fitted, limit)
	}
}

func TestEncodeTargetSizeAlreadyFits(t *testing.T) {
	dir := t.TempDir()
	src := gradient(16, 16)
	plain, err := Encode(src, filepath.Join(dir, "plain.jpeg"), FormatJPEG, 80, nil)
	if err != nil {
		t.Fatal(err)
	}
	big := 1024
	fitted, err := Encode(src, filepath.Join(dir, "fitted.jpeg"), FormatJPEG, 80, &big)
	if err != nil {
		t.Fatal(err)
	}
	if plain != fitted {
		t.Fatalf("size changed although target was met: %d vs %d", plain, fitted)
	}
}
