// Package cache inspects and prunes the package file cache.
package cache

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/errors"
)

// Entry is a file in the cache.
type Entry struct {
	Path string // absolute path
	Rel  string // slash-separated path below the cache directory
	Size int64
}

// Info summarizes the cache contents.
type Info struct {
	Directory string
	Files     int
	Size      int64
}

// CleanResult contains information about what was cleaned.
type CleanResult struct {
	Removed int
	Freed   int64
	Failed  []string
}

// Manager manages a package cache directory.
type Manager struct {
	directory string
}

// NewManager creates a cache manager for directory.
func NewManager(directory string) *Manager {
	return &Manager{directory: filepath.Clean(directory)}
}

// Directory returns the cache directory path.
func (m *Manager) Directory() string {
	return m.directory
}

// Entries lists the cached files sorted by path. A missing cache is empty.
func (m *Manager) Entries() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(m.directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == m.directory {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(m.directory, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Path: path, Rel: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, errors.IO("scan cache", m.directory, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Rel < entries[j].Rel })
	return entries, nil
}

// Info returns the number and total size of the cached files.
func (m *Manager) Info() (*Info, error) {
	entries, err := m.Entries()
	if err != nil {
		return nil, err
	}
	info := &Info{Directory: m.directory, Files: len(entries)}
	for _, e := range entries {
		info.Size += e.Size
	}
	return info, nil
}

// Stale returns the cached files keep rejects. Leftover partial downloads
// are always stale. A nil keep makes every file stale.
func (m *Manager) Stale(keep func(rel string) bool) ([]Entry, error) {
	entries, err := m.Entries()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(entries, func(e Entry) bool {
		if strings.HasPrefix(filepath.Base(e.Path), ".fetch-") {
			return false
		}
		return keep != nil && keep(e.Rel)
	}), nil
}

// Remove deletes entries and then the directories they leave empty.
// Files that cannot be removed are reported in the result.
func (m *Manager) Remove(entries []Entry) *CleanResult {
	res := &CleanResult{}
	dirs := make(map[string]bool)
	for _, e := range entries {
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			logger.Warn("cannot remove cached file", logger.Fields{"file": e.Path, "error": err.Error()})
			res.Failed = append(res.Failed, e.Rel)
			continue
		}
		res.Removed++
		res.Freed += e.Size
		for d := filepath.Dir(e.Path); d != m.directory && strings.HasPrefix(d, m.directory); d = filepath.Dir(d) {
			dirs[d] = true
		}
	}

	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, d := range ordered {
		// Fails on directories that still hold files.
		_ = os.Remove(d)
	}
	return res
}
