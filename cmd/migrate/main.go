package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"PayRunway/internal/observability"
	"PayRunway/internal/persistence"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down|status>")
		fmt.Println("  up     - apply all pending migrations")
		fmt.Println("  down   - roll back the last migration")
		fmt.Println("  status - list applied versions")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  DATABASE_DRIVER  - postgres or sqlite (default: postgres)")
		fmt.Println("  DATABASE_URL     - connection string (required)")
		fmt.Println("  MIGRATIONS_DIR   - migrations directory (default: built-in migrations)")
		os.Exit(1)
	}

	logger := observability.NewLogger("migrate")

	dialect, err := persistence.ParseDialect(envOrDefault("DATABASE_DRIVER", "postgres"))
	if err != nil {
		logger.Fatal().Err(err).Msg("bad driver")
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}

	var files fs.FS = persistence.EmbeddedMigrations(dialect)
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		files = os.DirFS(dir)
	}

	ctx := context.Background()
	db, err := persistence.Open(ctx, dialect, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	migrator := persistence.NewMigrator(db, dialect, files, logger)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Msg("last migration rolled back")

	case "status":
		versions, err := migrator.Applied(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate status")
		}
		fmt.Printf("applied (%d): %s\n", len(versions), strings.Join(versions, ", "))

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down' or 'status')\n", os.Args[1])
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
