package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
)

const schemaVersion = 1

// SQLite extended result codes for constraint violations.
const (
	codeConstraint           = 19
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. Statements are idempotent; the metadata table
// holds a single schema-version row as a placeholder for future migrations.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL
		);`,
		// Surrogate keys are TEXT sized for Discord snowflakes.
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(100) PRIMARY KEY,
			external_account_id VARCHAR(30),
			email VARCHAR(100),
			name VARCHAR(100) NOT NULL,
			avatar_url TEXT,
			current_thread_id VARCHAR(30)
		);`,
		`CREATE TABLE IF NOT EXISTS threads (
			id VARCHAR(30) PRIMARY KEY,
			user_id VARCHAR(100) NOT NULL,
			title VARCHAR(200) NOT NULL,
			last_message_sent_id VARCHAR(30) NOT NULL,
			last_message_read_id VARCHAR(30) NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(30) PRIMARY KEY,
			thread_id VARCHAR(30) NOT NULL,
			author_id VARCHAR(100),
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			edited_at DATETIME NOT NULL,
			FOREIGN KEY (thread_id) REFERENCES threads(id),
			FOREIGN KEY (author_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS reactions (
			message_id VARCHAR(30) NOT NULL,
			symbol VARCHAR(100) NOT NULL,
			PRIMARY KEY (message_id, symbol),
			FOREIGN KEY (message_id) REFERENCES messages(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_external_account ON users(external_account_id);`,
		`CREATE INDEX IF NOT EXISTS idx_threads_user ON threads(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);`,
		`INSERT INTO metadata (id, version) VALUES (1, ` + fmt.Sprint(schemaVersion) + `)
			ON CONFLICT(id) DO NOTHING;`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

// isConstraintErr reports whether err is a SQLite constraint violation
// (duplicate primary key / unique index).
func isConstraintErr(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case codeConstraint, codeConstraintPrimaryKey, codeConstraintUnique:
		return true
	}
	return false
}
