package condition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	require.True(t, catalog.Has("branches-table"))
	assert.Equal(t, TypeText, catalog.Schema("branches-table")["name"])
	assert.Equal(t, TypeDuration, catalog.Schema("todo-analytics-table")["duration"])
	assert.Nil(t, catalog.Schema("no-such-table"))
}

func TestLoadCatalogOverridesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte("tables:\n  branches-table:\n    name: text\n    rating: duration\n  invoices:\n    number: text\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, Schema{"name": TypeText, "rating": TypeDuration}, catalog.Schema("branches-table"))
	assert.True(t, catalog.Has("invoices"))
	assert.True(t, catalog.Has("requests-table"))
}

func TestParseCatalogRejectsUnknownType(t *testing.T) {
	_, err := ParseCatalog([]byte("tables:\n  t:\n    c: geo\n"))
	assert.Error(t, err)
}
