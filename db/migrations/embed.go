// Package migrations embeds the goose SQL migrations, one tree per dialect.
package migrations

import (
	"embed"
	"fmt"
)

// FS holds the SQL files under sql/<dialect>/.
//
//go:embed sql/postgres/*.sql sql/mysql/*.sql
var FS embed.FS

// DirFor returns the directory inside FS that goose reads for driver.
func DirFor(driver string) (string, error) {
	switch driver {
	case "postgres", "pg":
		return "sql/postgres", nil
	case "mysql":
		return "sql/mysql", nil
	default:
		return "", fmt.Errorf("no migrations for database driver %s", driver)
	}
}
