package compressor

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// decodeStrategy turns a file into a pixel buffer.
type decodeStrategy interface {
	decode(path string) (image.Image, error)
}

// Loader decodes image files. The primary strategy sniffs the content type and
// uses the matching decoder; when it fails the recovery strategy retries once
// over the raw bytes with every registered decoder.
type Loader struct {
	primary  decodeStrategy
	recovery decodeStrategy
}

// NewLoader returns a Loader with the default detect-then-decode and
// decode-any strategies.
func NewLoader() *Loader {
	return &Loader{
		primary:  sniffDecoder{},
		recovery: anyDecoder{},
	}
}

// Load validates and decodes the file at path.
func (l *Loader) Load(path string) (image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, newJobError(ErrIO, path, "metadata error", err)
	}
	if info.Size() == 0 {
		return nil, newJobError(ErrIO, path, "empty file", nil)
	}

	img, origErr := l.primary.decode(path)
	if origErr == nil {
		return img, nil
	}

	img, recErr := l.recovery.decode(path)
	if recErr == nil {
		return img, nil
	}
	return nil, newJobError(ErrFormat, path,
		fmt.Sprintf("original error: %v; recovery error: %v", origErr, recErr), nil)
}

type decodeFunc func(r io.Reader) (image.Image, error)

var decodersByMIME = map[string]decodeFunc{
	"image/jpeg": jpeg.Decode,
	"image/png":  png.Decode,
	"image/gif":  gif.Decode,
	"image/bmp":  bmp.Decode,
	"image/tiff": tiff.Decode,
	"image/webp": webp.Decode,
}

// sniffDecoder detects the format from file content and decodes with the
// matching codec only.
type sniffDecoder struct{}

func (sniffDecoder) decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("detect format: %w", err)
	}

	var dec decodeFunc
	for m := mtype; m != nil; m = m.Parent() {
		if d, ok := decodersByMIME[m.String()]; ok {
			dec = d
			break
		}
	}
	if dec == nil {
		return nil, fmt.Errorf("detect format: unrecognized image type %s", mtype.String())
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind file: %w", err)
	}
	img, err := dec(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", mtype.String(), err)
	}
	return img, nil
}

// anyDecoder reads the whole file and lets every registered decoder try it.
type anyDecoder struct{}

func (anyDecoder) decode(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}
