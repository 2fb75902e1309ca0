package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"crashpoll/internal/database"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
)

// Manages the ledger schema: wallets and the append-only ledger_entries
// table the bet settlement path writes through.

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	migrationsPath := getEnv("MIGRATIONS_PATH", "./migrations")

	if command == "create" {
		if len(os.Args) < 3 {
			log.Fatal("[MIGRATE] usage: migrate create <name>")
		}
		createMigration(migrationsPath, os.Args[2])
		return
	}

	db := openLedgerDB()
	defer db.Close()

	switch command {
	case "up":
		log.Println("[MIGRATE] Applying pending migrations")
		if err := database.RunMigrations(db, migrationsPath); err != nil {
			log.Fatalf("[MIGRATE] up failed: %v", err)
		}
		log.Println("[MIGRATE] Ledger schema is current")

	case "down":
		log.Println("[MIGRATE] Rolling back one migration")
		if err := database.RollbackMigration(db, migrationsPath); err != nil {
			log.Fatalf("[MIGRATE] down failed: %v", err)
		}
		log.Println("[MIGRATE] Rollback done")

	case "version":
		version, dirty, err := database.GetMigrationVersion(db, migrationsPath)
		if err != nil {
			log.Fatalf("[MIGRATE] version lookup failed: %v", err)
		}
		if dirty {
			log.Printf("[MIGRATE] Schema version %d is dirty, fix by hand before migrating", version)
		} else {
			log.Printf("[MIGRATE] Schema version %d", version)
		}

	default:
		log.Printf("[MIGRATE] Unknown command %q", command)
		printUsage()
		os.Exit(1)
	}
}

func openLedgerDB() *sql.DB {
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
		getEnv("BLUEPRINT_DB_PASSWORD", "postgres"),
		getEnv("BLUEPRINT_DB_HOST", "localhost"),
		getEnv("BLUEPRINT_DB_PORT", "5432"),
		getEnv("BLUEPRINT_DB_DATABASE", "crashdb"),
		getEnv("BLUEPRINT_DB_SCHEMA", "public"),
	)

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		log.Fatalf("[MIGRATE] Database connection failed: %v", err)
	}
	return db
}

// createMigration scaffolds the next numbered up/down pair, continuing
// from the highest version already on disk.
func createMigration(migrationsPath, name string) {
	ups, err := filepath.Glob(filepath.Join(migrationsPath, "*.up.sql"))
	if err != nil {
		log.Fatalf("[MIGRATE] Scan migrations: %v", err)
	}

	next := 1
	for _, path := range ups {
		base := filepath.Base(path)
		prefix, _, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(prefix); err == nil && v >= next {
			next = v + 1
		}
	}

	upFile := filepath.Join(migrationsPath, fmt.Sprintf("%06d_%s.up.sql", next, name))
	downFile := filepath.Join(migrationsPath, fmt.Sprintf("%06d_%s.down.sql", next, name))

	if err := os.WriteFile(upFile, []byte(fmt.Sprintf("-- %s\n", name)), 0644); err != nil {
		log.Fatalf("[MIGRATE] Write %s: %v", upFile, err)
	}
	if err := os.WriteFile(downFile, []byte(fmt.Sprintf("-- revert %s\n", name)), 0644); err != nil {
		log.Fatalf("[MIGRATE] Write %s: %v", downFile, err)
	}

	log.Printf("[MIGRATE] Created %s", upFile)
	log.Printf("[MIGRATE] Created %s", downFile)
}

func printUsage() {
	fmt.Println("Ledger schema migration tool")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate up              apply all pending migrations")
	fmt.Println("  migrate down            roll back the most recent migration")
	fmt.Println("  migrate version         print the current schema version")
	fmt.Println("  migrate create <name>   scaffold a new up/down pair")
	fmt.Println()
	fmt.Println("Connection is read from the BLUEPRINT_DB_* environment")
	fmt.Println("variables (same as the api server) and MIGRATIONS_PATH")
	fmt.Println("(default ./migrations).")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
