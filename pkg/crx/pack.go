package crx

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/boyter/gocodewalker"
)

// DefaultPackExclusions lists development artifacts left out of packages.
// Directory names are handed to gocodewalker; filename patterns are matched
// against the base name of every walked file.
var DefaultPackExclusions = struct {
	ExcludeDirectory        []string
	ExcludeFilenamePatterns []string
}{
	ExcludeDirectory: []string{
		"node_modules",
		".git",
		"__tests__",
		"coverage",
	},
	ExcludeFilenamePatterns: []string{
		"*.test.js",
		"*.test.ts",
		"*.spec.js",
		"*.spec.ts",
		"*.log",
		"*.swp",
	},
}

// PackOptions configures Pack.
type PackOptions struct {
	IncludeAll bool // skip DefaultPackExclusions
	Verbose    bool // record excluded paths
}

// PackStats summarizes a Pack run.
type PackStats struct {
	mu            sync.Mutex
	FilesIncluded int
	FilesExcluded int
	BytesIncluded int64
	ExcludedPaths []string
	Version       string
}

func (s *PackStats) addIncluded(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilesIncluded++
	s.BytesIncluded += bytes
}

func (s *PackStats) addExcluded(path string, verbose bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilesExcluded++
	if verbose {
		s.ExcludedPaths = append(s.ExcludedPaths, path)
	}
}

// Pack zips an unpacked extension directory into destZip. The directory must
// contain manifest.json; the resulting archive is readable by ReadManifest.
func Pack(srcDir, destZip string, opts *PackOptions) (*PackStats, error) {
	if opts == nil {
		opts = &PackOptions{}
	}

	manifestPath := filepath.Join(srcDir, ManifestName)
	if _, err := os.Stat(manifestPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrManifestMissing, srcDir)
	}

	absDest, err := filepath.Abs(destZip)
	if err != nil {
		return nil, err
	}

	stats := &PackStats{}

	zipFile, err := os.Create(destZip)
	if err != nil {
		return nil, err
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	fileQueue := make(chan *gocodewalker.File, 256)
	walker := gocodewalker.NewFileWalker(srcDir, fileQueue)
	walker.IncludeHidden = true
	if !opts.IncludeAll {
		walker.ExcludeDirectory = append(walker.ExcludeDirectory, DefaultPackExclusions.ExcludeDirectory...)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- walker.Start()
	}()

	dirsAdded := make(map[string]struct{})
	var walkErr error

	for f := range fileQueue {
		// keep draining so the walker goroutine can finish
		if walkErr != nil {
			continue
		}
		walkErr = packFile(zipWriter, srcDir, absDest, f.Location, opts, stats, dirsAdded)
	}

	if err := <-errChan; err != nil {
		return stats, fmt.Errorf("directory walk failed: %w", err)
	}
	if walkErr != nil {
		return stats, walkErr
	}

	stats.Version, _ = versionFromDir(manifestPath)
	return stats, nil
}

func packFile(zw *zip.Writer, srcDir, absDest, location string, opts *PackOptions, stats *PackStats, dirsAdded map[string]struct{}) error {
	relPath, err := filepath.Rel(srcDir, location)
	if err != nil {
		return err
	}
	relPath = filepath.ToSlash(relPath)

	// the output may live inside the directory being packed
	if abs, err := filepath.Abs(location); err == nil && abs == absDest {
		return nil
	}

	if !opts.IncludeAll && excludedName(filepath.Base(location)) {
		stats.addExcluded(relPath, opts.Verbose)
		return nil
	}

	if dir := filepath.Dir(relPath); dir != "." && dir != "" {
		var current string
		for _, segment := range strings.Split(dir, "/") {
			if current == "" {
				current = segment
			} else {
				current = current + "/" + segment
			}
			if _, exists := dirsAdded[current+"/"]; !exists {
				if _, err := zw.Create(current + "/"); err != nil {
					return err
				}
				dirsAdded[current+"/"] = struct{}{}
			}
		}
	}

	w, err := zw.Create(relPath)
	if err != nil {
		return err
	}
	file, err := os.Open(location)
	if err != nil {
		return err
	}
	written, err := io.Copy(w, file)
	if closeErr := file.Close(); closeErr != nil {
		return closeErr
	}
	if err != nil {
		return err
	}
	stats.addIncluded(written)
	return nil
}

func excludedName(name string) bool {
	for _, pattern := range DefaultPackExclusions.ExcludeFilenamePatterns {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

func versionFromDir(manifestPath string) (string, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", err
	}
	var m Manifest
	if err := json.Unmarshal(trimBOM(data), &m); err != nil {
		return "", err
	}
	return strings.TrimSpace(m.Version), nil
}
