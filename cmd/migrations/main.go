package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/livepoll/internal/config"
)

func main() {
	var action string
	flag.StringVar(&action, "action", "up", "up | down | version | force")
	flag.Parse()

	pg, err := config.LoadPostgres()
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("postgres", pg.DSN(0))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	m, err := postgres.NewMigrator(db)
	if err != nil {
		log.Fatal(err)
	}

	switch action {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatal(verr)
		}
		fmt.Printf("version: %d, dirty: %v\n", version, dirty)
		return
	case "force":
		if flag.NArg() < 1 {
			log.Fatal("force requires a version argument")
		}
		v, perr := strconv.Atoi(flag.Arg(0))
		if perr != nil {
			log.Fatalf("invalid version %q: %v", flag.Arg(0), perr)
		}
		err = m.Force(v)
	default:
		log.Fatalf("unknown action %q", action)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("No migrations to apply.")
			return
		}
		log.Fatalf("Migration failed: %v", err)
	}

	fmt.Println("Migrations applied successfully.")
}
