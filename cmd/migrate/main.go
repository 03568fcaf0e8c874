package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	"mailprobe/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "./mailprobe.db", "Path to the database file")
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath+"?_foreign_keys=on")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		log.Fatalf("Failed to create migrations table: %v", err)
	}

	names, err := migrations.ListMigrations()
	if err != nil {
		log.Fatalf("Failed to list migrations: %v", err)
	}

	applied := 0
	for _, name := range names {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE name = ?", name).Scan(&count); err != nil {
			log.Fatalf("Failed to check migration status for %s: %v", name, err)
		}
		if count > 0 {
			fmt.Printf("Skipping %s (already applied)\n", name)
			continue
		}

		script, err := migrations.Read(name)
		if err != nil {
			log.Fatalf("Failed to read migration %s: %v", name, err)
		}

		fmt.Printf("Applying %s...\n", name)
		if _, err := db.Exec(script); err != nil {
			log.Fatalf("Failed to apply migration %s: %v", name, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (name) VALUES (?)", name); err != nil {
			log.Fatalf("Failed to record migration %s: %v", name, err)
		}
		applied++
	}

	if applied == 0 {
		fmt.Println("Database schema is up to date")
	} else {
		fmt.Printf("Applied %d migration(s)\n", applied)
	}
}
