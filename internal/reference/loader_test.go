package reference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBlocklistCatalog(t *testing.T) {
	dir := t.TempDir()
	yml := `name: trapgrid
codes:
  - code: A1
    reason: control plot
  - code: " b3 "
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trapgrid.yaml"), []byte(yml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	cat, err := LoadBlocklistCatalog(dir)
	require.NoError(t, err)
	require.Len(t, cat, 1)

	set := cat["trapgrid"].Set()
	assert.Contains(t, set, "A1")
	assert.Contains(t, set, "B3") // нормализуется к верхнему регистру
	assert.Len(t, set, 2)
}

func TestLoadBlocklistCatalogNameFromFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.yml"), []byte("codes:\n  - code: C4\n"), 0o644))

	cat, err := LoadBlocklistCatalog(dir)
	require.NoError(t, err)
	assert.Contains(t, cat, "legacy")
}

func TestLoadBlocklistCatalogMissingDir(t *testing.T) {
	cat, err := LoadBlocklistCatalog(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, cat)
}
