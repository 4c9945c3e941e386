package database

import (
	"database/sql"

	"github.com/pkg/errors"
)

// Migration is one versioned schema step.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are embedded in version order. Applied versions are tracked
// in schema_migrations so restarts are idempotent.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS classrooms (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				teacher_id    TEXT NOT NULL,
				board_enabled INTEGER NOT NULL DEFAULT 1,
				is_active     INTEGER NOT NULL DEFAULT 1
			);

			CREATE TABLE IF NOT EXISTS enrollments (
				classroom_id TEXT NOT NULL REFERENCES classrooms(id),
				student_id   TEXT NOT NULL,
				PRIMARY KEY (classroom_id, student_id)
			);

			CREATE TABLE IF NOT EXISTS boards (
				id                         TEXT PRIMARY KEY,
				classroom_id               TEXT NOT NULL UNIQUE REFERENCES classrooms(id),
				allow_student_edit         INTEGER NOT NULL DEFAULT 1,
				allow_student_create_pages INTEGER NOT NULL DEFAULT 0,
				view_only_mode             INTEGER NOT NULL DEFAULT 0,
				current_page_id            TEXT
			);

			CREATE TABLE IF NOT EXISTS pages (
				id              TEXT PRIMARY KEY,
				board_id        TEXT NOT NULL REFERENCES boards(id),
				name            TEXT NOT NULL,
				state           TEXT NOT NULL DEFAULT '{}',
				version         INTEGER NOT NULL DEFAULT 1,
				last_updated_by TEXT NOT NULL DEFAULT '',
				updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_enrollments_student ON enrollments(student_id);
			CREATE INDEX IF NOT EXISTS idx_pages_board ON pages(board_id);
		`,
	},
}

// MigrationManager applies embedded migrations against an open database.
type MigrationManager struct {
	db *sql.DB
}

func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations, each inside its own
// transaction.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return errors.Wrap(err, "create migration table")
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return errors.Wrap(err, "list applied migrations")
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(migration); err != nil {
			return errors.Wrapf(err, "apply migration %s", migration.Version)
		}
	}

	return nil
}

// ValidateSchema checks the tables this service depends on actually exist.
func (m *MigrationManager) ValidateSchema() error {
	for _, table := range []string{"classrooms", "enrollments", "boards", "pages"} {
		exists, err := m.tableExists(table)
		if err != nil {
			return errors.Wrapf(err, "check table %s", table)
		}
		if !exists {
			return errors.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MigrationManager) tableExists(tableName string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
