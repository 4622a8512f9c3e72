// Package registry enumerates installed plugin packages and reports their
// activation status. The filesystem implementation scans an installed-plugins
// directory for plugin file headers, the same header block the detection
// service looks for in candidates.
package registry

import (
	"context"
)

// PluginInfo is the metadata parsed from an installed plugin's file header.
type PluginInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// Registry is the installed-plugin enumeration contract the engine consumes.
type Registry interface {
	// ListInstalled returns a mapping from plugin file path (relative to the
	// plugins root, e.g. "my-plugin/my-plugin.php") to its metadata.
	ListInstalled(ctx context.Context) (map[string]PluginInfo, error)

	// IsActive reports whether the plugin file is currently activated.
	IsActive(ctx context.Context, pluginFile string) (bool, error)
}
