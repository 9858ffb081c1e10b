package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/noah-isme/toko-checkout/internal/db"
)

// migrate applies the embedded schema migrations.
//
//	migrate up            apply all pending migrations
//	migrate down N        roll back N migrations
//	migrate force V       mark version V as clean after a failed run
//	migrate version       print the current version
func main() {
	_ = godotenv.Load()
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		fail("DATABASE_URL is not set")
	}
	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	m, err := db.NewMigrator(dbURL)
	if err != nil {
		fail(err.Error())
	}
	defer func() {
		_, _ = m.Close()
	}()

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-intArg(1))
	case "force":
		err = m.Force(intArg(1))
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			fail(verr.Error())
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
		return
	default:
		fail("unknown command " + cmd)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fail(err.Error())
	}
	fmt.Printf("migrate %s: OK\n", cmd)
}

func intArg(i int) int {
	n, err := strconv.Atoi(flag.Arg(i))
	if err != nil || n < 0 {
		fail("expected a non-negative number argument")
	}
	return n
}

func fail(msg string) {
	fmt.Fprintf(os.Stderr, "migrate: %s\n", msg)
	os.Exit(2)
}
