package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
)

// ValidateDir validates migration filenames + basic SQL headers in dir of
// fsys.
func ValidateDir(fsys fs.FS, dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{} // version -> filename

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		full := path.Join(dir, name)
		b, err := fs.ReadFile(fsys, full)
		if err != nil {
			return fmt.Errorf("read file %q: %w", full, err)
		}

		txt := string(b)
		if !strings.Contains(txt, "-- +goose Up") {
			return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
		}
		if !strings.Contains(txt, "-- +goose Down") {
			return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
		}
	}

	return nil
}

// ValidateParity checks that every driver directory carries the same
// migration versions.
func ValidateParity(fsys fs.FS, dirs ...string) error {
	var (
		reference    map[string]bool
		referenceDir string
	)
	for _, dir := range dirs {
		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return fmt.Errorf("read dir %q: %w", dir, err)
		}
		versions := map[string]bool{}
		for _, e := range entries {
			if m := sqlFileRe.FindStringSubmatch(e.Name()); m != nil {
				versions[m[1]] = true
			}
		}
		if reference == nil {
			reference, referenceDir = versions, dir
			continue
		}
		for v := range reference {
			if !versions[v] {
				return fmt.Errorf("migration %s present in %q but missing in %q", v, referenceDir, dir)
			}
		}
		for v := range versions {
			if !reference[v] {
				return fmt.Errorf("migration %s present in %q but missing in %q", v, dir, referenceDir)
			}
		}
	}
	return nil
}
