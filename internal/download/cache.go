package download

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// CacheUsage walks the cache directory and returns the total size in bytes
// of all regular files under it. A missing directory counts as zero usage.
func CacheUsage(fsys afero.Fs, dir string) (int64, error) {
	exists, err := afero.DirExists(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to check cache directory: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var total int64
	err = afero.Walk(fsys, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk cache directory: %w", err)
	}

	slog.Debug("cache usage computed", "dir", dir, "bytes", total)
	return total, nil
}

// ClearCache removes every entry under the cache directory, keeping the
// directory itself so the engine can keep writing into it.
func ClearCache(fsys afero.Fs, dir string) error {
	exists, err := afero.DirExists(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to check cache directory: %w", err)
	}
	if !exists {
		slog.Debug("cache directory does not exist, nothing to clear", "dir", dir)
		return nil
	}

	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		target := filepath.Join(dir, entry.Name())
		if err := fsys.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to remove %s: %w", target, err)
		}
	}

	slog.Info("cache cleared", "dir", dir, "entries_removed", len(entries))
	return nil
}
