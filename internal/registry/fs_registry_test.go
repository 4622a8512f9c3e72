package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pluginHeader = `<?php
/*
 * Plugin Name: Example Gallery
 * Version: 1.4.2
 * Description: A small gallery plugin.
 */
`

func writePlugin(t *testing.T, root, dir, file, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, dir, file), []byte(contents), 0o644))
}

func TestListInstalled(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "example-gallery", "example-gallery.php", pluginHeader)
	writePlugin(t, root, "no-header", "index.php", "<?php // nothing here")

	r := NewFilesystemRegistry(root, filepath.Join(root, "active.json"))
	installed, err := r.ListInstalled(t.Context())
	require.NoError(t, err)

	require.Len(t, installed, 1)
	info, ok := installed["example-gallery/example-gallery.php"]
	require.True(t, ok)
	assert.Equal(t, "Example Gallery", info.Name)
	assert.Equal(t, "1.4.2", info.Version)
}

func TestListInstalledMissingRootIsEmpty(t *testing.T) {
	r := NewFilesystemRegistry(filepath.Join(t.TempDir(), "absent"), "")
	installed, err := r.ListInstalled(t.Context())
	require.NoError(t, err)
	assert.Empty(t, installed)
}

func TestListingIsCachedUntilInvalidate(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "first", "first.php", pluginHeader)

	r := NewFilesystemRegistry(root, "")
	installed, err := r.ListInstalled(t.Context())
	require.NoError(t, err)
	require.Len(t, installed, 1)

	writePlugin(t, root, "second", "second.php", strings.Replace(pluginHeader, "Example Gallery", "Second", 1))

	installed, err = r.ListInstalled(t.Context())
	require.NoError(t, err)
	assert.Len(t, installed, 1, "cached listing should not see the new plugin")

	r.Invalidate()
	installed, err = r.ListInstalled(t.Context())
	require.NoError(t, err)
	assert.Len(t, installed, 2)
}

func TestIsActive(t *testing.T) {
	root := t.TempDir()
	activePath := filepath.Join(root, "active.json")
	active, _ := json.Marshal([]string{"example-gallery/example-gallery.php"})
	require.NoError(t, os.WriteFile(activePath, active, 0o644))

	r := NewFilesystemRegistry(root, activePath)

	ok, err := r.IsActive(t.Context(), "example-gallery/example-gallery.php")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.IsActive(t.Context(), "other/other.php")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsActiveMissingListMeansInactive(t *testing.T) {
	r := NewFilesystemRegistry(t.TempDir(), filepath.Join(t.TempDir(), "absent.json"))
	ok, err := r.IsActive(t.Context(), "anything/anything.php")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseHeader(t *testing.T) {
	info, ok := ParseHeader(strings.NewReader(pluginHeader))
	require.True(t, ok)
	assert.Equal(t, "Example Gallery", info.Name)
	assert.Equal(t, "1.4.2", info.Version)
	assert.Equal(t, "A small gallery plugin.", info.Description)

	_, ok = ParseHeader(strings.NewReader("<?php echo 'no header';"))
	assert.False(t, ok)
}
