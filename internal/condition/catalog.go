package condition

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog maps a table id to the schema of its columns.
type Catalog map[string]Schema

type catalogFile struct {
	Tables map[string]map[string]ColumnType `yaml:"tables"`
}

func ParseCatalog(data []byte) (Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse table catalog: %w", err)
	}
	catalog := make(Catalog, len(file.Tables))
	for tableID, columns := range file.Tables {
		tableID = strings.TrimSpace(tableID)
		if tableID == "" {
			return nil, fmt.Errorf("parse table catalog: empty table id")
		}
		schema := make(Schema, len(columns))
		for column, colType := range columns {
			if !colType.IsValid() {
				return nil, fmt.Errorf("parse table catalog: %s.%s has unknown type %q", tableID, column, colType)
			}
			schema[column] = colType
		}
		catalog[tableID] = schema
	}
	return catalog, nil
}

// DefaultCatalog returns the built-in column vocabulary.
func DefaultCatalog() Catalog {
	catalog, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return catalog
}

// LoadCatalog reads path and lays its tables over the built-in catalog.
// An empty path yields the built-in catalog alone.
func LoadCatalog(path string) (Catalog, error) {
	catalog := DefaultCatalog()
	path = strings.TrimSpace(path)
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table catalog: %w", err)
	}
	overrides, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	for tableID, schema := range overrides {
		catalog[tableID] = schema
	}
	return catalog, nil
}

// Schema returns the schema of tableID, or nil when the table is unknown.
func (c Catalog) Schema(tableID string) Schema {
	return c[tableID]
}

func (c Catalog) Has(tableID string) bool {
	_, ok := c[tableID]
	return ok
}

func (c Catalog) TableIDs() []string {
	out := make([]string, 0, len(c))
	for id := range c {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
