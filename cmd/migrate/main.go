package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/rubberops/tapping-backend/pkg/config"
	"github.com/rubberops/tapping-backend/pkg/db"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/migrate"
)

type dbCommand func(ctx context.Context, m *migrate.Migrator) error

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	embedded := flag.Bool("embedded", false, "use the migrations compiled into the binary instead of -dir")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// Offline commands work on the source tree and never touch the database.
	switch *cmd {
	case "create":
		if *name == "" {
			exitf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			exitf("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	commands := map[string]dbCommand{
		"up": func(ctx context.Context, m *migrate.Migrator) error {
			applied, err := m.Up(ctx)
			if err == nil {
				fmt.Println("applied:", applied)
			}
			return err
		},
		"down": func(ctx context.Context, m *migrate.Migrator) error {
			version, err := m.Down(ctx)
			if err == nil {
				fmt.Println("rolled back:", version)
			}
			return err
		},
		"status": func(ctx context.Context, m *migrate.Migrator) error {
			status, err := m.Status(ctx)
			for _, st := range status {
				fmt.Printf("%d\t%s\t%s\n", st.Source.Version, st.State, st.Source.Path)
			}
			return err
		},
		"version": func(ctx context.Context, m *migrate.Migrator) error {
			if *version == "" {
				return fmt.Errorf("missing -version for version command")
			}
			applied, err := m.MigrateTo(ctx, *version)
			if err == nil {
				fmt.Println("applied:", applied)
			}
			return err
		},
	}
	run, ok := commands[*cmd]
	if !ok {
		exitf("unknown -cmd value: %s", *cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	source := *dir
	if *embedded {
		source = migrate.EmbeddedDir
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": source,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to unwrap sql database", multierr.Append(err, dbClient.Close()))
		os.Exit(1)
	}

	migrator, err := migrate.New(sqlDB, source)
	if err != nil {
		logg.Error(ctx, "failed to load migrations", multierr.Append(err, dbClient.Close()))
		os.Exit(1)
	}

	logg.Info(ctx, "migrate.start")
	runErr := run(ctx, migrator)
	if err := multierr.Append(runErr, dbClient.Close()); err != nil {
		logg.Error(ctx, fmt.Sprintf("goose %s failed", *cmd), err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate.done")
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
