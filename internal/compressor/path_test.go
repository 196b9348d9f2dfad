package compressor

import "testing"

func TestDeriveOutputPath(t *testing.T) {
	cases := []struct {
		in     string
		format Format
		want   string
	}{
		{"/a/b/photo.png", FormatJPEG, "/a/b/photo_compressed.jpeg"},
		{"noext", FormatPNG, "./noext_compressed.png"},
		{"photo.jpg", FormatJPEG, "./photo_compressed.jpeg"},
		{"./photo.jpg", FormatPNG, "./photo_compressed.png"},
		{"dir/archive.tar.gz", FormatPNG, "dir/archive.tar_compressed.png"},
		{"/tmp/.hidden", FormatJPEG, "/tmp/.hidden_compressed.jpeg"},
		{"", FormatPNG, "./compressed_compressed.png"},
		{"/", FormatPNG, "./compressed_compressed.png"},
		{"/x/y.png", Format("bmp"), "/x/y_compressed.bmp"},
	}
	for _, tc := range cases {
		if got := DeriveOutputPath(tc.in, tc.format); got != tc.want {
			t.Errorf("DeriveOutputPath(%q, %q) = %q, want %q", tc.in, tc.format, got, tc.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"jpeg":  FormatJPEG,
		"JPG":   FormatJPEG,
		" png ": FormatPNG,
		"bmp":   Format("bmp"),
	}
	for in, want := range cases {
		got := ParseFormat(in)
		if got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", in, got, want)
		}
	}
	if Format("bmp").Supported() {
		t.Errorf("bmp reported as supported")
	}
}
