package storage

import (
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestInitSchema verifies that InitSchema creates all required tables and indexes.
func TestInitSchema(t *testing.T) {
	t.Parallel()
	db := openRawDB(t)

	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	tables := []string{"endpoints", "endpoint_roles", "features", "feature_roles"}
	for _, table := range tables {
		var name string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name); err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	indexes := []string{
		"idx_endpoints_path_method_active",
		"idx_endpoints_resource_action",
		"idx_features_code_live",
		"idx_features_parent",
		"idx_feature_roles_role",
	}
	for _, idx := range indexes {
		var name string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&name); err != nil {
			t.Errorf("index %s not found: %v", idx, err)
		}
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	t.Parallel()
	db := openRawDB(t)

	for i := 0; i < 3; i++ {
		if err := InitSchema(db); err != nil {
			t.Fatalf("InitSchema call %d failed: %v", i+1, err)
		}
	}

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table'
		AND name IN ('endpoints', 'endpoint_roles', 'features', 'feature_roles')`).Scan(&count)
	if err != nil {
		t.Fatalf("failed to query tables: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 tables, got %d", count)
	}
}

// TestActivePathMethodUniqueness verifies the partial index only constrains active rows.
func TestActivePathMethodUniqueness(t *testing.T) {
	t.Parallel()
	db := openRawDB(t)
	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	insert := `INSERT INTO endpoints (path, method, created_at, updated_at, is_active)
		VALUES ('/api/x', 'GET', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, ?)`

	if _, err := db.Exec(insert, false); err != nil {
		t.Fatalf("failed to insert inactive row: %v", err)
	}
	if _, err := db.Exec(insert, true); err != nil {
		t.Fatalf("failed to insert active row next to inactive one: %v", err)
	}
	if _, err := db.Exec(insert, true); err == nil {
		t.Error("expected unique violation for second active row")
	} else if !isUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
}

func TestRoleJoinCascadeDelete(t *testing.T) {
	t.Parallel()
	db := openRawDB(t)
	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	res, err := db.Exec(`INSERT INTO endpoints (path, method, created_at, updated_at)
		VALUES ('/api/x', 'GET', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	if err != nil {
		t.Fatalf("failed to insert endpoint: %v", err)
	}
	id, _ := res.LastInsertId()

	if _, err := db.Exec("INSERT INTO endpoint_roles (endpoint_id, role_code, created_at) VALUES (?, 'ADMIN', CURRENT_TIMESTAMP)", id); err != nil {
		t.Fatalf("failed to insert role: %v", err)
	}

	if _, err := db.Exec("DELETE FROM endpoints WHERE id = ?", id); err != nil {
		t.Fatalf("failed to delete endpoint: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM endpoint_roles WHERE endpoint_id = ?", id).Scan(&count); err != nil {
		t.Fatalf("failed to count roles: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 roles after cascade delete, got %d", count)
	}
}

func TestRoleJoinForeignKey(t *testing.T) {
	t.Parallel()
	db := openRawDB(t)
	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	_, err := db.Exec("INSERT INTO feature_roles (feature_id, role_code, created_at) VALUES (999, 'ADMIN', CURRENT_TIMESTAMP)")
	if err == nil {
		t.Error("expected foreign key constraint error, but insert succeeded")
	}
}

func TestIsUniqueViolationIgnoresOtherConstraints(t *testing.T) {
	t.Parallel()
	db := openRawDB(t)
	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	_, err := db.Exec("INSERT INTO feature_roles (feature_id, role_code, created_at) VALUES (999, 'ADMIN', CURRENT_TIMESTAMP)")
	if err == nil {
		t.Fatal("expected foreign key constraint error")
	}
	if isUniqueViolation(err) {
		t.Errorf("foreign key failure classified as unique violation: %v", err)
	}

	_, err = db.Exec("INSERT INTO endpoints (path, method, created_at, updated_at) VALUES (NULL, 'GET', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)")
	if err == nil {
		t.Fatal("expected NOT NULL constraint error")
	}
	if isUniqueViolation(err) {
		t.Errorf("NOT NULL failure classified as unique violation: %v", err)
	}

	if isUniqueViolation(errors.New("UNIQUE constraint failed")) {
		t.Error("plain error classified as unique violation")
	}
}
