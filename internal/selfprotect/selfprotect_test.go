package selfprotect

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameFragmentMatch(t *testing.T) {
	d := New("")

	res := d.Detect("acme/kiss-smart-batch-installer", "")
	assert.True(t, res.Protected)
	assert.Equal(t, "name_fragment", res.Reason)

	res = d.Detect("Acme/KISS-Smart-Batch-Installer", "")
	assert.True(t, res.Protected, "matching is case-insensitive")
}

func TestUnrelatedPluginNotProtected(t *testing.T) {
	d := New("")
	res := d.Detect("acme/unrelated-plugin", "")
	assert.False(t, res.Protected)
	assert.Empty(t, res.Reason)
}

func TestPathRuleTakesPrecedence(t *testing.T) {
	selfDir := filepath.Join("wp-content", "plugins", "kiss-smart-batch-installer")
	d := New(selfDir)

	res := d.Detect("acme/kiss-smart-batch-installer", filepath.Join(selfDir, "main.php"))
	assert.True(t, res.Protected)
	assert.Equal(t, "path_match", res.Reason, "path rule is evaluated first")
}

func TestPathRuleIgnoredWithoutPluginFile(t *testing.T) {
	d := New(filepath.Join("wp-content", "plugins", "kiss-smart-batch-installer"))
	res := d.Detect("acme/other-plugin", "")
	assert.False(t, res.Protected)
}

func TestKeywordCombination(t *testing.T) {
	d := New("")

	// Code name alone is not enough.
	res := d.Detect("acme/kissable-gallery", "")
	assert.False(t, res.Protected)

	// Code name plus an operation word is.
	res = d.Detect("acme/kiss-bulk-batch-tool", "")
	assert.True(t, res.Protected)
	assert.Equal(t, "keyword_combination", res.Reason)

	res = d.Detect("acme/kisstools-installer", "")
	assert.True(t, res.Protected)
}

func TestExactMatch(t *testing.T) {
	d := New("")

	res := d.Detect("kissplugins/KISS-Smart-Batch-Installer", "")
	assert.True(t, res.Protected)

	// Exact list also matches case-insensitively, but an earlier rule may
	// claim the match first; only the protected flag is guaranteed here.
	res = d.Detect("KISSPLUGINS/kiss-smart-batch-installer", "")
	assert.True(t, res.Protected)
}

func TestOperationWordWithoutCodeName(t *testing.T) {
	d := New("")
	res := d.Detect("acme/batch-image-installer", "")
	assert.False(t, res.Protected, "installer/batch without a code name is unrelated")
}
