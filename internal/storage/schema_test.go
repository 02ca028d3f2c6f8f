package storage

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// TestInitSchema verifies that InitSchema creates all required tables and indexes.
func TestInitSchema(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	tables := []string{"magic_tokens", "principals"}
	for _, table := range tables {
		query := "SELECT name FROM sqlite_master WHERE type='table' AND name=?"
		var name string
		if err := db.QueryRow(query, table).Scan(&name); err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	indexes := []string{"idx_magic_tokens_token", "idx_magic_tokens_subject"}
	for _, idx := range indexes {
		query := "SELECT name FROM sqlite_master WHERE type='index' AND name=?"
		var name string
		if err := db.QueryRow(query, idx).Scan(&name); err != nil {
			t.Errorf("index %s not found: %v", idx, err)
		}
	}
}

// TestInitSchemaIdempotent verifies that InitSchema can be called multiple times without errors.
func TestInitSchemaIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	for i := 0; i < 3; i++ {
		if err := MigrateSchema(db); err != nil {
			t.Fatalf("MigrateSchema call %d failed: %v", i+1, err)
		}
	}

	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('magic_tokens', 'principals')"
	var count int
	if err := db.QueryRow(query).Scan(&count); err != nil {
		t.Fatalf("failed to query tables: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 tables, got %d", count)
	}
}

// TestSchemaTokenUniqueIndex verifies the storage-level uniqueness backstop on token values.
func TestSchemaTokenUniqueIndex(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	insert := `INSERT INTO magic_tokens (token, target_path, action_scope, created_at, updated_at)
		VALUES ('same', '/x', '{"a":["b"]}', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err = db.Exec(insert)
	if err == nil {
		t.Fatal("expected unique constraint violation on second insert")
	}
	if !isUniqueViolation(err) {
		t.Errorf("isUniqueViolation(%v) = false, want true", err)
	}
}

// TestInitSchemaWithClosedDB verifies InitSchema reports errors from the database.
func TestInitSchemaWithClosedDB(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	_ = db.Close()

	if err := InitSchema(db); err == nil {
		t.Error("expected error for closed database")
	}
}
