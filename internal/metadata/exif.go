package metadata

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFReader reads tags with the rwcarlsen/goexif library.
type EXIFReader struct {
	logger *logrus.Logger
}

// NewEXIFReader returns a new EXIFReader.
func NewEXIFReader(logger *logrus.Logger) *EXIFReader {
	return &EXIFReader{logger: logger}
}

// Read returns the carried-over tags of filePath. Files without EXIF data
// return an error.
func (r *EXIFReader) Read(filePath string) (*Tags, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	str := func(name exif.FieldName) string {
		tag, err := x.Get(name)
		if err != nil {
			return ""
		}
		v, err := tag.StringVal()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(v, "\x00"))
	}

	tags := &Tags{
		Make:             str(exif.Make),
		Model:            str(exif.Model),
		Artist:           str(exif.Artist),
		Copyright:        str(exif.Copyright),
		Software:         str(exif.Software),
		DateTimeOriginal: str(exif.DateTimeOriginal),
	}

	if tm, err := x.DateTime(); err == nil {
		tags.Taken = &tm
	} else if tags.DateTimeOriginal != "" {
		tags.Taken = r.parseEXIFDateTime(tags.DateTimeOriginal)
	}

	return tags, nil
}

// IsStamped reports whether the Software tag carries the imgpress marker.
func (r *EXIFReader) IsStamped(filePath string) bool {
	tags, err := r.Read(filePath)
	if err != nil {
		return false
	}
	return strings.Contains(tags.Software, SoftwareMarker)
}

// parseEXIFDateTime parses an EXIF date time string. Returns nil if parsing fails.
func (r *EXIFReader) parseEXIFDateTime(dateStr string) *time.Time {
	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		"2006-01-02",
		time.RFC3339,
	}

	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}

	r.logger.Debugf("Failed to parse date string: %s", dateStr)
	return nil
}

// ExiftoolStamper writes tags with a long-lived exiftool process.
type ExiftoolStamper struct {
	reader Reader
	et     *exiftool.Exiftool
}

// NewExiftoolStamper starts exiftool. It fails when the exiftool binary is
// not installed.
func NewExiftoolStamper(reader Reader) (*ExiftoolStamper, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &ExiftoolStamper{reader: reader, et: et}, nil
}

// Stamp copies the tags of src onto dst and marks dst with SoftwareMarker.
// Originals without EXIF data only get the marker.
func (s *ExiftoolStamper) Stamp(src, dst string) error {
	fm := exiftool.EmptyFileMetadata()
	fm.File = dst

	if tags, err := s.reader.Read(src); err == nil {
		for k, v := range tags.Fields() {
			fm.SetString(k, v)
		}
	}
	fm.SetString("Software", SoftwareMarker)

	batch := []exiftool.FileMetadata{fm}
	s.et.WriteMetadata(batch)
	if batch[0].Err != nil {
		return fmt.Errorf("exiftool write failed: %w", batch[0].Err)
	}
	return nil
}

// Close stops the exiftool process.
func (s *ExiftoolStamper) Close() error {
	return s.et.Close()
}
