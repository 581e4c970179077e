package db

import (
	"database/sql"
	"fmt"
)

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'USER',
			create_time TEXT NOT NULL,
			update_time TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS personal_access_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			token_prefix TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			last_used_at TEXT,
			expires_at TEXT,
			revoked_at TEXT,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS filter_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			table_id TEXT NOT NULL,
			name TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(user_id, table_id, name),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_filter_groups_table ON filter_groups(user_id, table_id, position);`,
		`CREATE TABLE IF NOT EXISTS saved_filters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			table_id TEXT NOT NULL,
			name TEXT NOT NULL,
			conditions_json TEXT NOT NULL DEFAULT '[]',
			operators_json TEXT NOT NULL DEFAULT '[]',
			group_id INTEGER,
			position INTEGER NOT NULL DEFAULT 0,
			is_standard INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(user_id, table_id, name),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(group_id) REFERENCES filter_groups(id) ON DELETE SET NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saved_filters_table ON saved_filters(user_id, table_id);`,
		`CREATE INDEX IF NOT EXISTS idx_saved_filters_group ON saved_filters(group_id, position);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	// sort directions were added after the first release
	hasSort, err := hasColumn(db, "saved_filters", "sort_directions_json")
	if err != nil {
		return err
	}
	if !hasSort {
		if _, err := db.Exec(`ALTER TABLE saved_filters ADD COLUMN sort_directions_json TEXT NOT NULL DEFAULT '[]';`); err != nil {
			return fmt.Errorf("add saved_filters.sort_directions_json: %w", err)
		}
	}

	return nil
}

func hasColumn(db *sql.DB, tableName string, columnName string) (bool, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ? COLLATE NOCASE`,
		tableName, columnName,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", tableName, err)
	}
	return n > 0, nil
}
