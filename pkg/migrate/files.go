package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const versionLayout = "20060102150405"

var (
	fileNameRe   = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)
)

type sqlFile struct {
	version string
	name    string
}

// scanDir lists the .sql files in dir by version. Badly named files are
// reported in the returned error and left out of the list.
func scanDir(dir string) ([]sqlFile, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}
	var (
		files []sqlFile
		errs  error
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		match := fileNameRe.FindStringSubmatch(entry.Name())
		if match == nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", entry.Name()))
			continue
		}
		files = append(files, sqlFile{version: match[1], name: entry.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, errs
}

// ValidateDir checks every migration in dir and reports all problems at
// once: bad file names, reused versions, and goose annotations that are
// missing, out of order or unbalanced.
func ValidateDir(dir string) error {
	files, errs := scanDir(dir)
	if len(files) == 0 && errs == nil {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	owner := map[string]string{}
	for _, f := range files {
		if prev, dup := owner[f.version]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %s already used by %s", f.name, f.version, prev))
		}
		owner[f.version] = f.name

		body, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, checkAnnotations(f.name, string(body)))
	}
	return errs
}

func checkAnnotations(name, body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("%s: missing -- +goose Up", name)
	case down < 0:
		return fmt.Errorf("%s: missing -- +goose Down", name)
	case down < up:
		return fmt.Errorf("%s: Down section comes before Up", name)
	}
	begins := strings.Count(body, "-- +goose StatementBegin")
	ends := strings.Count(body, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("%s: %d StatementBegin against %d StatementEnd", name, begins, ends)
	}
	return nil
}

// CreateSQLMigration writes an empty goose migration into dir and returns
// its path. The version is the current UTC time, bumped past the newest
// existing migration so files created in the same second never collide.
func CreateSQLMigration(dir, name string) (string, error) {
	slug := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	files, _ := scanDir(dir)

	version := time.Now().UTC().Truncate(time.Second)
	if n := len(files); n > 0 {
		if latest, err := time.Parse(versionLayout, files[n-1].version); err == nil && !version.After(latest) {
			version = latest.Add(time.Second)
		}
	}

	path := filepath.Join(dir, version.Format(versionLayout)+"_"+slug+".sql")
	body := strings.Join([]string{
		"-- +goose Up",
		"-- +goose StatementBegin",
		"-- " + slug,
		"-- +goose StatementEnd",
		"",
		"-- +goose Down",
		"-- +goose StatementBegin",
		"-- revert " + slug,
		"-- +goose StatementEnd",
		"",
	}, "\n")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	_, writeErr := f.WriteString(body)
	if err := multierr.Combine(writeErr, f.Close()); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}
