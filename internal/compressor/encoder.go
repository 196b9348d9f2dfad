package compressor

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

// Encode writes img to outputPath in the given format and returns the size of
// the written file. For JPEG, a positive targetSizeKB lowers the quality until
// the output fits. PNG ignores both quality and targetSizeKB.
func Encode(img image.Image, outputPath string, format Format, quality int, targetSizeKB *int) (int64, error) {
	quality = max(min(quality, 100), 0)

	switch format {
	case FormatJPEG:
		if targetSizeKB != nil && *targetSizeKB > 0 {
			data, err := fitJPEG(img, quality, int64(*targetSizeKB)*1024)
			if err != nil {
				return 0, newJobError(ErrEncode, outputPath, "encode JPEG", err)
			}
			return writeOutput(outputPath, "JPEG", func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			})
		}
		return writeOutput(outputPath, "JPEG", func(w io.Writer) error {
			return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
		})
	case FormatPNG:
		return writeOutput(outputPath, "PNG", func(w io.Writer) error {
			return imaging.Encode(w, img, imaging.PNG)
		})
	default:
		return 0, newJobError(ErrUnsupportedFormat, outputPath,
			fmt.Sprintf("unsupported image format %q", string(format)), nil)
	}
}

// writeOutput creates or truncates path, runs encode into it and returns the
// final file size. A partially written file is removed on failure.
func writeOutput(path, label string, encode func(w io.Writer) error) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, newJobError(ErrIO, path, "create "+label+" file", err)
	}

	if err := encode(f); err != nil {
		f.Close()
		_ = os.Remove(path)
		return 0, newJobError(ErrEncode, path, "encode "+label, err)
	}

	info, err := f.Stat()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return 0, newJobError(ErrIO, path, "stat "+label+" file", err)
	}
	return info.Size(), nil
}

// fitJPEG binary-searches the highest quality in [1, maxQuality] whose
// encoding is at most limit bytes. If even quality 1 is too large, the
// quality 1 encoding is returned.
func fitJPEG(img image.Image, maxQuality int, limit int64) ([]byte, error) {
	encodeAt := func(q int) ([]byte, error) {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	maxQuality = max(maxQuality, 1)
	best, err := encodeAt(maxQuality)
	if err != nil {
		return nil, err
	}
	if int64(len(best)) <= limit {
		return best, nil
	}

	lo, hi := 1, maxQuality-1
	var fallback []byte
	best = nil
	for lo <= hi {
		mid := (lo + hi) / 2
		data, err := encodeAt(mid)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) <= limit {
			best = data
			lo = mid + 1
		} else {
			if mid == 1 {
				fallback = data
			}
			hi = mid - 1
		}
	}

	if best != nil {
		return best, nil
	}
	if fallback != nil {
		return fallback, nil
	}
	return encodeAt(1)
}
