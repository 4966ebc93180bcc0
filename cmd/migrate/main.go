package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"capgate.org/internal/auth"
	"capgate.org/internal/config"
	"capgate.org/internal/migrate"
	"capgate.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn       = flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
		rolesPath = flag.String("roles", os.Getenv("ROLES_FILE"), "YAML role definitions for seed (defaults to built-in roles)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), pg.Migrations, migrate.WithDir("migrations"))

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			fmt.Println("rolled back", name)
		}
	case "seed":
		err = seed(ctx, store, *rolesPath)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func seed(ctx context.Context, store *pg.Store, rolesPath string) error {
	roles, err := config.LoadRoles(rolesPath)
	if err != nil {
		return err
	}
	registry, err := auth.NewRegistry(store, 0)
	if err != nil {
		return err
	}
	report, err := registry.Seed(ctx, roles)
	if err != nil {
		return err
	}
	fmt.Printf("roles created=%d skipped=%d\n", len(report.Created), len(report.Skipped))
	return nil
}
