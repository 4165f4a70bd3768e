package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/PortNumber53/storefront/backend/internal/config"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/migrations"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping database", "error", err)
	}

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		log.Info("applying migrations")
		if err := migrations.Up(db, log); err != nil {
			log.Fatal("failed to apply migrations", "error", err)
		}

	case "fix":
		log.Info("attempting to fix dirty database")
		if err := migrations.FixDirtyDatabase(db, log); err != nil {
			log.Fatal("failed to fix dirty database", "error", err)
		}

	case "force":
		if len(os.Args) < 3 {
			log.Fatal("usage: dbtool force <version>")
		}
		v, err := strconv.ParseUint(os.Args[2], 10, 32)
		if err != nil {
			log.Fatal("invalid version number", "version", os.Args[2])
		}
		if err := migrations.ForceVersion(db, uint(v)); err != nil {
			log.Fatal("failed to force version", "error", err)
		}
		log.Info("database version forced", "version", v)

	case "status":
		status, err := migrations.CurrentStatus(db)
		if err != nil {
			log.Fatal("failed to read migration status", "error", err)
		}
		if status.Fresh {
			log.Info("no migrations applied yet")
			return
		}
		log.Info("migration status", "version", status.Version, "dirty", status.Dirty)

	default:
		fmt.Fprintf(os.Stderr, "usage: %s [up|fix|force <version>|status]\n", os.Args[0])
		os.Exit(1)
	}
}
