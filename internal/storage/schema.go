// Package storage handles all database operations for the gateway reconciler.
package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all required tables and indexes.
// This is idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	ddlStatements := []string{
		// endpoints table: declarative registry of gateway routes
		`CREATE TABLE IF NOT EXISTS endpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			method TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			module TEXT NOT NULL DEFAULT '',
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			rate_limit_requests INTEGER,
			rate_limit_window TEXT,
			resource_name TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			gateway_route_id TEXT,
			gateway_route_name TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			deleted_at TIMESTAMP,
			created_by TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,

		// (path, method) is unique among active endpoints only; soft-deleted rows keep their values
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_endpoints_path_method_active
			ON endpoints(path, method) WHERE is_active = TRUE`,

		`CREATE INDEX IF NOT EXISTS idx_endpoints_resource_action
			ON endpoints(resource_name, action, method)`,

		// endpoint_roles table: role codes required by an endpoint
		`CREATE TABLE IF NOT EXISTS endpoint_roles (
			endpoint_id INTEGER NOT NULL,
			role_code TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (endpoint_id, role_code),
			FOREIGN KEY (endpoint_id) REFERENCES endpoints(id) ON DELETE CASCADE
		)`,

		// features table: self-referencing navigation hierarchy
		`CREATE TABLE IF NOT EXISTS features (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			icon TEXT NOT NULL DEFAULT '',
			route TEXT NOT NULL DEFAULT '',
			parent_id INTEGER,
			order_index INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			deleted_at TIMESTAMP,
			created_by TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			FOREIGN KEY (parent_id) REFERENCES features(id)
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_features_code_live
			ON features(code) WHERE deleted_at IS NULL`,

		`CREATE INDEX IF NOT EXISTS idx_features_parent ON features(parent_id)`,

		// feature_roles table: role codes that can see a feature
		`CREATE TABLE IF NOT EXISTS feature_roles (
			feature_id INTEGER NOT NULL,
			role_code TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (feature_id, role_code),
			FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_feature_roles_role ON feature_roles(role_code)`,
	}

	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}
