package compressor

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CollectImageFiles expands directories in inputPaths into the image files
// they contain, keeping explicit file arguments as given. Missing paths are
// kept too, so the batch reports them as failures. Files found inside a
// directory are sorted; the order of the arguments is preserved.
func CollectImageFiles(inputPaths []string, extensions []string, recursive bool) ([]string, error) {
	extSet := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		extSet[strings.ToLower(e)] = struct{}{}
	}

	var files []string
	for _, in := range inputPaths {
		info, err := os.Stat(in)
		if err != nil || !info.IsDir() {
			files = append(files, in)
			continue
		}

		var found []string
		err = filepath.WalkDir(in, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != in && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if isDerivedOutput(d.Name()) {
				return nil
			}
			if _, ok := extSet[strings.ToLower(filepath.Ext(d.Name()))]; ok {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// isDerivedOutput reports whether name looks like an output of a previous run.
func isDerivedOutput(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.HasSuffix(stem, "_compressed")
}
