package compressor

import (
	"path/filepath"
	"strings"
)

// DeriveOutputPath returns {dir}/{stem}_compressed.{ext} for the input path.
func DeriveOutputPath(input string, format Format) string {
	base := filepath.Base(input)
	stem := base
	if ext := filepath.Ext(base); ext != base {
		stem = strings.TrimSuffix(base, ext)
	}
	if base == "." || base == ".." || base == string(filepath.Separator) || stem == "" {
		stem = "compressed"
	}

	dir := filepath.Dir(input)
	if dir == "" || base == string(filepath.Separator) {
		// the filesystem root has no parent
		dir = "."
	}

	name := stem + "_compressed." + format.Extension()
	if dir == "." {
		// filepath.Join would drop the leading "./"
		return "." + string(filepath.Separator) + name
	}
	return filepath.Join(dir, name)
}
