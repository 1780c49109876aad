// Command migrate applies versioned SQL migrations to the statement
// database. Migration files live in a directory as NNNN_name.sql and are
// applied in order; each applied migration is recorded with a checksum so a
// modified file is caught instead of silently re-run.
package main

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// Migration is a single migration file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

var (
	databasePath  = flag.String("database", os.Getenv("DATABASE_PATH"), "Path to the SQLite database (or set DATABASE_PATH)")
	migrationsDir = flag.String("migrations", "migrations", "Path to migrations directory")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name recorded against applied migrations")
)

var migrationFilePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	flag.Parse()

	if *databasePath == "" {
		log.Fatal("Error: -database flag is required (or set DATABASE_PATH)")
	}

	db, err := sql.Open("sqlite", *databasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database: %s", *databasePath)

	if err := ensureSchemaMigrationsTable(db); err != nil {
		log.Fatalf("Failed to ensure schema_migrations table: %v", err)
	}

	migrations, err := readMigrations(*migrationsDir)
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}
	log.Printf("Found %d migration files", len(migrations))

	applied, err := appliedChecksums(db)
	if err != nil {
		log.Fatalf("Failed to read applied migrations: %v", err)
	}

	pending := 0
	for _, m := range migrations {
		checksum, ok := applied[m.Version]
		if ok {
			if checksum != m.Checksum {
				log.Fatalf("Migration %s changed after being applied (checksum mismatch)", m.Filename)
			}
			continue
		}

		if err := applyMigration(db, m, *appliedBy); err != nil {
			log.Fatalf("Failed to apply %s: %v", m.Filename, err)
		}
		log.Printf("Applied %s", m.Filename)
		pending++
	}

	if pending == 0 {
		log.Println("Database is up to date")
	} else {
		log.Printf("Applied %d migrations", pending)
	}
}

func ensureSchemaMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			applied_by TEXT NOT NULL
		)`)
	return err
}

// readMigrations loads and orders the migration files in dir.
func readMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		if other, dup := seen[m.Version]; dup {
			return nil, fmt.Errorf("duplicate version %04d: %s and %s", m.Version, other, entry.Name())
		}
		seen[m.Version] = entry.Name()

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		m.SQL = string(content)
		m.Checksum = checksum(content)
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFilename extracts the version and name from NNNN_name.sql.
func parseMigrationFilename(filename string) (Migration, bool) {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return Migration{}, false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return Migration{}, false
	}
	return Migration{
		Version:  version,
		Name:     matches[2],
		Filename: filename,
	}, true
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func appliedChecksums(db *sql.DB) (map[int]string, error) {
	rows, err := db.Query(`SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var version int
		var sum string
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, err
		}
		applied[version] = sum
	}
	return applied, rows.Err()
}

// applyMigration runs one migration and records it in the same transaction.
func applyMigration(db *sql.DB, m Migration, appliedBy string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO schema_migrations (version, name, checksum, applied_at, applied_by)
		VALUES (?, ?, ?, ?, ?)`,
		m.Version, m.Name, m.Checksum, time.Now().UTC().Format(time.RFC3339), appliedBy); err != nil {
		return err
	}
	return tx.Commit()
}
