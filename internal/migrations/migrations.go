package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// GetInitialSchema returns the initial database schema
func GetInitialSchema() (string, error) {
	data, err := schemaFS.ReadFile("schema/001_initial_schema.sql")
	if err != nil {
		return "", fmt.Errorf("could not read embedded schema: %w", err)
	}
	return string(data), nil
}

// ListMigrations returns the ordered list of embedded migration file names.
func ListMigrations() ([]string, error) {
	entries, err := fs.ReadDir(schemaFS, "schema")
	if err != nil {
		return nil, fmt.Errorf("could not list embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the contents of a single embedded migration.
func Read(name string) (string, error) {
	data, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return "", fmt.Errorf("could not read migration %s: %w", name, err)
	}
	return string(data), nil
}
