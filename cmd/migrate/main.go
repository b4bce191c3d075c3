package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

type schemaCommand func(ctx context.Context, runner *migrate.Runner, opts options) error

var schemaCommands = map[string]schemaCommand{
	"up":     func(ctx context.Context, r *migrate.Runner, _ options) error { return r.Up(ctx) },
	"down":   func(ctx context.Context, r *migrate.Runner, _ options) error { return r.Down(ctx) },
	"status": func(ctx context.Context, r *migrate.Runner, _ options) error { return r.Status(ctx) },
	"version": func(ctx context.Context, r *migrate.Runner, opts options) error {
		if opts.version == "" {
			current, err := r.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Println("schema version:", current)
			return nil
		}
		return r.To(ctx, opts.version)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "command: up|down|status|version|create|validate|seed")
	var opts options
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (defaults to the set compiled into the binary; create writes to "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (for version; omit to print the current one)")
	flag.Parse()

	// create and validate only touch files
	switch *cmd {
	case "create":
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name, time.Now())
		exitOn(err, "create migration")
		fmt.Println("created migration:", path)
		return
	case "validate":
		fsys, err := migrate.Source(opts.dir)
		exitOn(err, "open migrations")
		exitOn(migrate.ValidateFS(fsys), "validate migrations")
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	exitOn(err, "load config")

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(err, "connect database")
	defer dbClient.Close()

	if *cmd == "seed" {
		if cfg.App.IsProd() {
			exitOn(fmt.Errorf("refusing to seed demo catalog in %s", cfg.App.Env), "seed")
		}
		created, err := migrate.SeedDemoCatalog(ctx, dbClient.DB())
		exitOn(err, "seed")
		fmt.Printf("seeded %d rows\n", created)
		return
	}

	run, ok := schemaCommands[*cmd]
	if !ok {
		exitOn(fmt.Errorf("unknown -cmd %q (schema commands: %s)", *cmd, strings.Join(commandNames(), ", ")), "parse flags")
	}

	sqlDB, err := dbClient.DB().DB()
	exitOn(err, "extract sql.DB")
	fsys, err := migrate.Source(opts.dir)
	exitOn(err, "open migrations")
	runner, err := migrate.NewRunner(sqlDB, fsys, logg)
	exitOn(err, "prepare migrations")

	logg.Info(ctx, "migrate ready")
	if err := run(ctx, runner, opts); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
}

func commandNames() []string {
	names := make([]string, 0, len(schemaCommands))
	for name := range schemaCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func exitOn(err error, step string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
