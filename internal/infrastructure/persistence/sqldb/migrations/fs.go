// Package migrations embeds the schema scripts for each supported database.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// PostgresDir is the goose migration directory inside PostgresFS.
const PostgresDir = "postgres"

//go:embed postgres/*.sql
var PostgresFS embed.FS

//go:embed oracle/*.sql
var oracleFS embed.FS

// Script is one embedded SQL file.
type Script struct {
	Name    string
	Content string
}

// OracleScripts returns the Oracle schema scripts in name order.
func OracleScripts() ([]Script, error) {
	entries, err := fs.ReadDir(oracleFS, "oracle")
	if err != nil {
		return nil, fmt.Errorf("listing migration files: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scripts := make([]Script, 0, len(names))
	for _, name := range names {
		content, err := oracleFS.ReadFile("oracle/" + name)
		if err != nil {
			return nil, fmt.Errorf("reading migration file %s: %w", name, err)
		}
		scripts = append(scripts, Script{Name: name, Content: string(content)})
	}
	return scripts, nil
}
