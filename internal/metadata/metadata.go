package metadata

import (
	"time"
)

// SoftwareMarker is written into the Software tag of stamped outputs.
const SoftwareMarker = "imgpress"

// Tags holds the EXIF tags carried over from an original to its compressed copy.
type Tags struct {
	Make             string     `json:"make,omitempty"`
	Model            string     `json:"model,omitempty"`
	Artist           string     `json:"artist,omitempty"`
	Copyright        string     `json:"copyright,omitempty"`
	Software         string     `json:"software,omitempty"`
	DateTimeOriginal string     `json:"date_time_original,omitempty"`
	Taken            *time.Time `json:"taken,omitempty"`
}

// Fields returns the non-empty tags keyed by their exiftool names.
func (t *Tags) Fields() map[string]string {
	fields := make(map[string]string)
	add := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	add("Make", t.Make)
	add("Model", t.Model)
	add("Artist", t.Artist)
	add("Copyright", t.Copyright)
	add("DateTimeOriginal", t.DateTimeOriginal)
	return fields
}

// Reader reads carried-over tags from a file.
type Reader interface {
	Read(filePath string) (*Tags, error)
}

// Stamper copies tags from an original onto a compressed output.
type Stamper interface {
	Stamp(src, dst string) error
	Close() error
}
