// Package files enumerates input directories in a stable, caller-selected order.
package files

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"stereocalib/internal/errkind"
)

// SortOrder selects how file names are ordered.
type SortOrder int

const (
	// Lexicographic orders names byte-wise.
	Lexicographic SortOrder = iota
	// Numeric orders names by the number embedded in them, falling back to
	// lexicographic order for equal numbers.
	Numeric
)

// ParseSortOrder converts a config value into a SortOrder.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(s) {
	case "", "lexicographic":
		return Lexicographic, nil
	case "numeric":
		return Numeric, nil
	default:
		return Lexicographic, errkind.New(errkind.InvalidInput, "unknown sort order %q", s)
	}
}

// ImageExtensions are the image types the detector can decode.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff"}

// List returns the regular files in dir whose extension is one of exts (all
// files when exts is empty), sorted by order. An empty result is an error.
func List(dir string, exts []string, order SortOrder) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", dir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if len(exts) > 0 && !hasExtension(entry.Name(), exts) {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return nil, errkind.New(errkind.InputEmpty, "no matching files in %s", dir)
	}

	Sort(names, order)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// Sort sorts names in place.
func Sort(names []string, order SortOrder) {
	if order == Lexicographic {
		sort.Strings(names)
		return
	}
	sort.SliceStable(names, func(i, j int) bool {
		numI := ExtractNumber(names[i])
		numJ := ExtractNumber(names[j])
		if numI != numJ {
			return numI < numJ
		}
		return names[i] < names[j]
	})
}

// ExtractNumber returns the first run of digits in the base name, or -1 if there is none.
func ExtractNumber(filename string) int64 {
	base := filepath.Base(filename)
	start := strings.IndexFunc(base, isDigit)
	if start < 0 {
		return -1
	}
	end := start
	for end < len(base) && isDigit(rune(base[end])) {
		end++
	}
	num, err := strconv.ParseInt(base[start:end], 10, 64)
	if err != nil {
		return -1
	}
	return num
}

// Subdirectories returns the immediate subdirectories of dir in lexicographic order.
func Subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", dir)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// FindOne returns the single file in dir matching the glob pattern. Zero or
// several matches are a discovery error.
func FindOne(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", errkind.Wrapf(err, errkind.InvalidInput, "bad pattern %q", pattern)
	}
	var regular []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			regular = append(regular, m)
		}
	}
	switch len(regular) {
	case 1:
		return regular[0], nil
	case 0:
		return "", errkind.New(errkind.DiscoveryAmbiguity, "no file matching %q in %s", pattern, dir)
	default:
		sort.Strings(regular)
		return "", errkind.New(errkind.DiscoveryAmbiguity, "%d files matching %q in %s: %v",
			len(regular), pattern, dir, regular)
	}
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func isDigit(c rune) bool { return c >= '0' && c <= '9' }
