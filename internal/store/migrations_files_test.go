package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationFilesAreWellFormed(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)
	seen := map[string]bool{}
	count := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			t.Fatalf("unexpected file in migrations dir: %s", name)
		}
		version := match[1]
		if seen[version] {
			t.Fatalf("duplicate migration version %s", version)
		}
		seen[version] = true
		count++

		contents, err := os.ReadFile(filepath.Join(migrationsDir, name))
		if err != nil {
			t.Fatalf("read migration %s: %v", name, err)
		}
		if strings.TrimSpace(string(contents)) == "" {
			t.Fatalf("migration %s is empty", name)
		}
	}

	if count == 0 {
		t.Fatal("no migrations discovered")
	}
}

func TestInitMigrationCoversAllTables(t *testing.T) {
	contents, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	sql := string(contents)

	tables := []string{
		"users",
		"password_resets",
		"refresh_sessions",
		"revoked_access_tokens",
		"therapist_patients",
		"mood_scales",
		"mood_entries",
		"abc_schemas",
		"exercises",
		"exercise_templates",
		"exercise_assignments",
		"exercise_completions",
		"shared_data",
	}
	for _, table := range tables {
		if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("init migration is missing table %s", table)
		}
	}

	if !strings.Contains(sql, "GENERATED ALWAYS AS") {
		t.Fatal("init migration should build the thought record tsvector column")
	}

	if !strings.Contains(sql, "UNIQUE (patient_id, therapist_id, data_type, data_id)") {
		t.Fatal("init migration should make the sharing ledger unique per record and therapist")
	}
}
