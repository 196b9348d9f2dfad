package main

import (
	"bytes"
	"errors"
	"image"
	"path/filepath"
	"strings"
	"testing"

	"imgpress/internal/compressor"
	"imgpress/internal/config"
	"imgpress/internal/hoststats"

	"github.com/disintegration/imaging"
)

func TestRunPlan(t *testing.T) {
	tests := []struct {
		name     string
		host     hoststats.HostStats
		override int
		want     string
	}{
		{"planned", hoststats.Static{Stats: hoststats.Stats{AvailableMB: 4096, CPUCores: 16}}, 0, "Workers:        8\n"},
		{"low memory", hoststats.Static{Stats: hoststats.Stats{AvailableMB: 300, CPUCores: 16}}, 0, "Workers:        2\n"},
		{"override", hoststats.Static{Stats: hoststats.Stats{AvailableMB: 4096, CPUCores: 16}}, 3, "Workers:        3 (configured, planned 8)\n"},
		{"unavailable", hoststats.Static{Err: errors.New("boom")}, 0, "Workers:        1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := runPlan(&buf, tt.host, tt.override); err != nil {
				t.Fatal(err)
			}
			if !strings.HasSuffix(buf.String(), tt.want) {
				t.Fatalf("output %q does not end with %q", buf.String(), tt.want)
			}
		})
	}
}

func TestRunInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := imaging.Save(image.NewNRGBA(image.Rect(0, 0, 21, 13)), path); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	cfg := config.DefaultConfig()
	if err := runInspect(&buf, cfg, path); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"image/png",
		"21x13 (png)",
		"EXIF:       none",
		"Collected:  true",
		"Stamped:    false",
		compressor.DeriveOutputPath(path, compressor.FormatJPEG),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if err := runInspect(&buf, cfg, filepath.Dir(path)); err == nil {
		t.Fatalf("expected an error for a directory")
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := progressPrinter(&buf, 2)
	p(compressor.Outcome{Index: 1, Path: "b.png"})
	p(compressor.Outcome{Index: 0, Path: "a.png"})

	if got := buf.String(); got != "\r[1/2] b.png\r[2/2] a.png\n" {
		t.Fatalf("progress output = %q", got)
	}
}
