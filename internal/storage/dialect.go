package storage

import (
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour behind a store.
type Dialect string

const (
	// DialectSQLite uses "?" placeholders (mattn/go-sqlite3).
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres uses "$n" placeholders (lib/pq).
	DialectPostgres Dialect = "postgres"
)

// Rebind rewrites "?" placeholders into the dialect's form. Queries in this package
// never contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Placeholders returns n comma-separated placeholders starting at position start (1-based).
func (d Dialect) Placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		if d == DialectPostgres {
			parts[i] = "$" + strconv.Itoa(start+i)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

func (d Dialect) schema() string {
	if d == DialectPostgres {
		return `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		looking_for_text TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_users_eligible ON users(is_active, is_email_verified);

	CREATE TABLE IF NOT EXISTS journey_answers (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		question_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_answers_user_id ON journey_answers(user_id, id);
	`
	}
	return `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		looking_for_text TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		is_email_verified INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_eligible ON users(is_active, is_email_verified);

	CREATE TABLE IF NOT EXISTS journey_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_answers_user_id ON journey_answers(user_id, id);
	`
}
