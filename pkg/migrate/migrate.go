package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// DefaultDir is where new migrations are written by `cmd/migrate -cmd=create`.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the migration set to run. An empty dir selects the set compiled
// into the binary so workers do not depend on their working directory.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat migrations dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations path %q is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

// Runner applies the storefront schema with goose.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
	logg *logger.Logger
}

// NewRunner validates the migration set and prepares goose for postgres.
func NewRunner(db *sql.DB, fsys fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if fsys == nil {
		return nil, fmt.Errorf("migration source is required")
	}
	if err := ValidateFS(fsys); err != nil {
		return nil, err
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Runner{db: db, fsys: fsys, logg: logg}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	return r.run(ctx, "up", func() error { return goose.UpContext(ctx, r.db, ".") })
}

// Down rolls back the latest migration.
func (r *Runner) Down(ctx context.Context) error {
	return r.run(ctx, "down", func() error { return goose.DownContext(ctx, r.db, ".") })
}

// Status prints the applied/pending state of each migration.
func (r *Runner) Status(ctx context.Context) error {
	return r.run(ctx, "status", func() error { return goose.StatusContext(ctx, r.db, ".") })
}

// Version reports the latest applied migration version.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	var version int64
	err := r.run(ctx, "version", func() error {
		v, err := goose.GetDBVersionContext(ctx, r.db)
		version = v
		return err
	})
	return version, err
}

// To moves the schema up or down until targetVersion is the latest applied migration.
func (r *Runner) To(ctx context.Context, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	if _, ok := findVersion(r.fsys, target); !ok && target != 0 {
		return fmt.Errorf("version %d is not in the migration set", target)
	}

	current, err := r.Version(ctx)
	if err != nil {
		return err
	}

	ctx = r.logg.WithFields(ctx, map[string]any{"current_version": current, "target_version": target})
	switch {
	case current == target:
		r.logg.Info(ctx, "schema already at target version")
		return nil
	case current < target:
		return r.run(ctx, "up-to", func() error { return goose.UpToContext(ctx, r.db, ".", target) })
	default:
		return r.run(ctx, "down-to", func() error { return goose.DownToContext(ctx, r.db, ".", target) })
	}
}

func (r *Runner) run(ctx context.Context, command string, fn func() error) error {
	goose.SetBaseFS(r.fsys)
	defer goose.SetBaseFS(nil)

	if err := fn(); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	r.logg.Debug(r.logg.WithField(ctx, "goose_command", command), "goose command finished")
	return nil
}

func findVersion(fsys fs.FS, version int64) (File, bool) {
	files, err := ListFiles(fsys)
	if err != nil {
		return File{}, false
	}
	for _, f := range files {
		if f.Version == version {
			return f, true
		}
	}
	return File{}, false
}
