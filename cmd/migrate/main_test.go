package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init.sql", true, 1, "init"},
		{"0042_add_bank_column.sql", true, 42, "add_bank_column"},
		{"001_invalid.sql", false, 0, ""},       // wrong number format
		{"0001_test", false, 0, ""},             // missing .sql
		{"0001.sql", false, 0, ""},              // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
		{"README.md", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m, ok := parseMigrationFilename(tt.filename)
			if ok != tt.valid {
				t.Fatalf("parseMigrationFilename(%q) ok = %v, want %v", tt.filename, ok, tt.valid)
			}
			if !tt.valid {
				return
			}
			if m.Version != tt.version {
				t.Errorf("Version = %d, want %d", m.Version, tt.version)
			}
			if m.Name != tt.name {
				t.Errorf("Name = %q, want %q", m.Name, tt.name)
			}
		})
	}
}

func TestChecksumConsistency(t *testing.T) {
	a := checksum([]byte("CREATE TABLE test (id INTEGER);"))
	b := checksum([]byte("CREATE TABLE test (id INTEGER);"))
	c := checksum([]byte("CREATE TABLE different (id INTEGER);"))

	if a != b {
		t.Error("same content produced different checksums")
	}
	if a == c {
		t.Error("different content produced the same checksum")
	}
	if len(a) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(a))
	}
}

func TestReadMigrationsOrdersAndRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_second.sql": "ALTER TABLE t ADD COLUMN b TEXT;",
		"0001_first.sql":  "CREATE TABLE t (a TEXT);",
		"notes.txt":       "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	migrations, err := readMigrations(dir)
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("wrong order: %d, %d", migrations[0].Version, migrations[1].Version)
	}

	if err := os.WriteFile(filepath.Join(dir, "0001_dup.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatalf("write duplicate: %v", err)
	}
	if _, err := readMigrations(dir); err == nil {
		t.Error("readMigrations() accepted duplicate version")
	}
}
