package scenario

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/entrhq/flowcheck/pkg/engine"
)

// Discover expands paths into scenario files. Directories are walked recursively
// for .yaml and .yml files; files are taken as given. The result is sorted and
// free of duplicates.
func Discover(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, filepath.Clean(p))
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if isScenarioFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func isScenarioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// LoadFile parses every scenario in one file.
func LoadFile(path string) ([]engine.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data, path)
}

// Load discovers and parses scenario files. Scenario names must be unique across
// all files.
func Load(paths []string) ([]engine.Scenario, error) {
	files, err := Discover(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", strings.Join(paths, ", "))
	}

	var all []engine.Scenario
	seen := make(map[string]string)
	for _, f := range files {
		scenarios, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		for _, sc := range scenarios {
			if prev, ok := seen[sc.Name]; ok {
				return nil, fmt.Errorf("%w: duplicate scenario name %q in %s and %s", engine.ErrInvalidScenario, sc.Name, prev, f)
			}
			seen[sc.Name] = f
			all = append(all, sc)
		}
	}
	return all, nil
}
