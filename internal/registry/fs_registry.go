package registry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// headerReadLimit bounds how much of a plugin file is inspected for the
// header block.
const headerReadLimit = 8 * 1024

// FilesystemRegistry scans a plugins directory for installed plugins and
// reads the active-plugins list from a JSON file. The directory listing is
// cached until Invalidate is called (the Watcher does this on fs changes).
type FilesystemRegistry struct {
	root       string
	activePath string

	mu     sync.RWMutex
	cache  map[string]PluginInfo
	cached bool
}

// NewFilesystemRegistry creates a registry over the given plugins root and
// active-plugins list file.
func NewFilesystemRegistry(root, activePath string) *FilesystemRegistry {
	return &FilesystemRegistry{root: root, activePath: activePath}
}

// ListInstalled scans (or returns the cached scan of) the plugins root.
// Each immediate subdirectory is searched for a file carrying a plugin
// header; the first header found names the plugin.
func (r *FilesystemRegistry) ListInstalled(_ context.Context) (map[string]PluginInfo, error) {
	r.mu.RLock()
	if r.cached {
		out := make(map[string]PluginInfo, len(r.cache))
		for k, v := range r.cache {
			out[k] = v
		}
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()

	installed, err := r.scan()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache = installed
	r.cached = true
	r.mu.Unlock()

	out := make(map[string]PluginInfo, len(installed))
	for k, v := range installed {
		out[k] = v
	}
	return out, nil
}

// IsActive reports whether pluginFile appears in the active-plugins list.
// A missing or unreadable list means nothing is active.
func (r *FilesystemRegistry) IsActive(_ context.Context, pluginFile string) (bool, error) {
	data, err := os.ReadFile(r.activePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read active plugins list: %w", err)
	}

	var active []string
	if err := json.Unmarshal(data, &active); err != nil {
		return false, fmt.Errorf("parse active plugins list: %w", err)
	}
	for _, p := range active {
		if p == pluginFile {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the cached directory listing; the next ListInstalled
// rescans.
func (r *FilesystemRegistry) Invalidate() {
	r.mu.Lock()
	r.cached = false
	r.cache = nil
	r.mu.Unlock()
}

func (r *FilesystemRegistry) scan() (map[string]PluginInfo, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]PluginInfo{}, nil
		}
		return nil, fmt.Errorf("read plugins directory: %w", err)
	}

	installed := make(map[string]PluginInfo)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(r.root, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			slog.Debug("skipping unreadable plugin directory", "dir", dir, "error", err)
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".php") {
				continue
			}
			path := filepath.Join(dir, f.Name())
			info, ok := ParseHeaderFile(path)
			if !ok {
				continue
			}
			key := entry.Name() + "/" + f.Name()
			installed[key] = info
			break // first header file names the plugin
		}
	}
	return installed, nil
}

// ParseHeaderFile reads the plugin header block from the start of a file.
// Returns ok=false when the file has no "Plugin Name:" header.
func ParseHeaderFile(path string) (PluginInfo, bool) {
	f, err := os.Open(path)
	if err != nil {
		return PluginInfo{}, false
	}
	defer func() { _ = f.Close() }()
	return ParseHeader(io.LimitReader(f, headerReadLimit))
}

// ParseHeader extracts plugin header fields from the given reader. Header
// fields follow the "Key: Value" convention inside the leading comment
// block; only "Plugin Name" is mandatory.
func ParseHeader(reader io.Reader) (PluginInfo, bool) {
	var info PluginInfo
	found := false

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimLeft(line, "/*# ")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "plugin name":
			if value != "" {
				info.Name = value
				found = true
			}
		case "version":
			info.Version = value
		case "description":
			info.Description = value
		}
	}
	return info, found
}
