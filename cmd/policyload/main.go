// policyload validates a Rego module in package didlink.session and stores it as a named session policy.
//
//	go run ./cmd/policyload -name trusted-admin -file policies/trusted_admin.rego
//	go run ./cmd/policyload -name trusted-admin -disable
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"didlink/internal/config"
	"didlink/internal/db"
	"didlink/internal/policy/domain"
	"didlink/internal/policy/engine"
	policyrepo "didlink/internal/policy/repository"
)

type options struct {
	name    string
	file    string
	disable bool
}

func main() {
	var opts options
	flag.StringVar(&opts.name, "name", "", "Policy name (unique)")
	flag.StringVar(&opts.file, "file", "", "Path to the .rego module")
	flag.BoolVar(&opts.disable, "disable", false, "Store the policy disabled")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := load(ctx, database, opts, os.ReadFile, time.Now); err != nil {
		log.Fatalf("policyload: %v", err)
	}
	log.Printf("policyload: stored %q (enabled=%v)", opts.name, !opts.disable)
}

func load(ctx context.Context, database *sql.DB, opts options, readFile func(string) ([]byte, error), now func() time.Time) error {
	p, err := buildPolicy(ctx, opts, readFile, now)
	if err != nil {
		return err
	}
	return policyrepo.NewPostgresRepository(database).Upsert(ctx, p)
}

// buildPolicy reads and validates the module. A disabled policy may omit -file and is stored with no rules.
func buildPolicy(ctx context.Context, opts options, readFile func(string) ([]byte, error), now func() time.Time) (*domain.Policy, error) {
	if opts.name == "" {
		return nil, errors.New("-name is required")
	}
	p := &domain.Policy{ID: uuid.New().String(), Name: opts.name, Enabled: !opts.disable, CreatedAt: now().UTC()}
	if opts.file == "" {
		if !opts.disable {
			return nil, errors.New("-file is required unless -disable is set")
		}
		return p, nil
	}
	raw, err := readFile(opts.file)
	if err != nil {
		return nil, err
	}
	if err := engine.ValidateRules(ctx, string(raw)); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.file, err)
	}
	p.Rules = string(raw)
	return p, nil
}
