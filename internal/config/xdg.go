package config

import (
	"log/slog"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "cadenza"

// XDGDirs resolves XDG base directory paths for the application
type XDGDirs struct{}

// NewXDGDirs creates an XDG directory resolver
func NewXDGDirs() *XDGDirs {
	return &XDGDirs{}
}

// GetConfigPaths returns config file candidates in priority order:
// user config dir first, then system config dirs
func (x *XDGDirs) GetConfigPaths(filename string) []string {
	paths := []string{
		filepath.Join(xdg.ConfigHome, appName, filename),
	}
	for _, dir := range xdg.ConfigDirs {
		paths = append(paths, filepath.Join(dir, appName, filename))
	}

	slog.Debug("resolved XDG config paths", "filename", filename, "count", len(paths))
	return paths
}

// GetCachePath returns a path under the application cache directory
func (x *XDGDirs) GetCachePath(subdir string) string {
	path := filepath.Join(xdg.CacheHome, appName, subdir)
	slog.Debug("resolved XDG cache path", "subdir", subdir, "path", path)
	return path
}
