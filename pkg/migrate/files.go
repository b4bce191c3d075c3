package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const versionLayout = "20060102150405"

var (
	fileNameRe     = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)
)

// File is one goose SQL migration in a source.
type File struct {
	Version int64
	Name    string
	Path    string
}

// ListFiles returns the .sql migrations in fsys ordered by version.
func ListFiles(fsys fs.FS) ([]File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q: %w", e.Name(), err)
		}
		files = append(files, File{Version: version, Name: m[2], Path: e.Name()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Version != files[j].Version {
			return files[i].Version < files[j].Version
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// ValidateFS checks every migration in fsys and reports all problems at once:
// malformed names, duplicate versions, and missing or misordered goose annotations.
func ValidateFS(fsys fs.FS) error {
	files, err := ListFiles(fsys)
	if err != nil {
		return err
	}

	var errs error
	seen := make(map[int64]string, len(files))
	for _, f := range files {
		if prev, ok := seen[f.Version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %d in %q and %q", f.Version, prev, f.Path))
		} else {
			seen[f.Version] = f.Path
		}

		body, err := fs.ReadFile(fsys, f.Path)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %q: %w", f.Path, err))
			continue
		}
		errs = multierr.Append(errs, checkAnnotations(f.Path, string(body)))
	}
	return errs
}

func checkAnnotations(path, body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", path)
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", path)
	case down < up:
		return fmt.Errorf("migration %q declares Down before Up", path)
	}
	return nil
}

// CreateSQLMigration writes an empty goose migration into dir and returns its path.
// The version is derived from now, bumped past the newest existing migration so
// files created in the same second still sort after each other.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	existing, err := ListFiles(os.DirFS(dir))
	if err != nil {
		return "", err
	}
	stamp := now.UTC().Truncate(time.Second)
	if n := len(existing); n > 0 {
		latest, err := time.Parse(versionLayout, strconv.FormatInt(existing[n-1].Version, 10))
		if err == nil && !stamp.After(latest) {
			stamp = latest.Add(time.Second)
		}
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", stamp.Format(versionLayout), safe))
	body := fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`, safe)

	f, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", fullpath, err)
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, f.Close()
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
