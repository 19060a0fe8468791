package cache

import (
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

func realStatfs(path string) (uint64, uint64, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, 0, err
	}
	bsize := uint64(fs.Bsize)
	return fs.Blocks * bsize, fs.Bavail * bsize, nil
}

// EnvEntry summarizes one cached environment for status output.
type EnvEntry struct {
	Name       string
	Path       string
	Complete   bool
	SizeBytes  int64
	ModifiedAt time.Time
}

// Stats describes current cache usage.
type Stats struct {
	Entries    []EnvEntry
	TotalBytes int64
	FreeBytes  uint64
	FSBytes    uint64
}

// GatherStats walks the environments directory and reports per-entry and
// filesystem usage.
func GatherStats(envsRoot string) (Stats, error) {
	return gatherStats(envsRoot, realStatfs)
}

func gatherStats(envsRoot string, statfs statfsFunc) (Stats, error) {
	stats := Stats{}

	entries, err := os.ReadDir(envsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(envsRoot, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		size, _ := dirSize(dirPath)
		_, markerErr := os.Stat(filepath.Join(dirPath, CompleteMarker))
		stats.Entries = append(stats.Entries, EnvEntry{
			Name:       entry.Name(),
			Path:       dirPath,
			Complete:   markerErr == nil,
			SizeBytes:  size,
			ModifiedAt: info.ModTime(),
		})
		stats.TotalBytes += size
	}

	if total, free, err := statfs(envsRoot); err == nil {
		stats.FSBytes = total
		stats.FreeBytes = free
	}

	return stats, nil
}

// dirSize calculates the total size of a directory recursively, best effort.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
