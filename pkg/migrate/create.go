package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/fieldsync/pkg/config"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// Drivers lists every driver that ships its own migration directory.
var Drivers = []string{config.DriverSQLite, config.DriverPostgres}

// CreateSQLMigration writes an empty goose migration with one shared version
// into <baseDir>/<driver> for each driver, so the directories stay in
// parity. It returns the created paths in driver order.
func CreateSQLMigration(baseDir string, name string, drivers ...string) ([]string, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return nil, fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if len(drivers) == 0 {
		drivers = Drivers
	}

	version := time.Now().UTC().Format("20060102150405")
	filename := fmt.Sprintf("%s_%s.sql", version, safe)

	paths := make([]string, 0, len(drivers))
	for _, driver := range drivers {
		paths = append(paths, filepath.Join(baseDir, driver, filename))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return nil, fmt.Errorf("migration already exists: %s", p)
		}
	}

	template := fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
-- %s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %s
-- +goose StatementEnd
`, safe, safe)

	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, []byte(template), 0o644); err != nil {
			return nil, fmt.Errorf("write migration %q: %w", p, err)
		}
	}
	return paths, nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
