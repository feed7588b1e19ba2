// migrate applies the embedded schema migrations.
//
//	go run ./cmd/migrate                 # up
//	go run ./cmd/migrate -direction down
//	go run ./cmd/migrate -status
package main

import (
	"flag"
	"fmt"
	"os"

	"didlink/internal/config"
	"didlink/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	status := flag.Bool("status", false, "Print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail("config", err)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set")
		os.Exit(1)
	}

	if *status {
		st, err := migrate.CurrentStatus(cfg.DatabaseURL)
		if err != nil {
			fail("status", err)
		}
		fmt.Printf("version=%d dirty=%v\n", st.Version, st.Dirty)
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fail("migrate", err)
	}
	st, err := migrate.CurrentStatus(cfg.DatabaseURL)
	if err != nil {
		fail("status", err)
	}
	fmt.Printf("migrated %s: version=%d\n", *direction, st.Version)
}

func fail(stage string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", stage, err)
	os.Exit(1)
}
