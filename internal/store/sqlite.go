package store

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// NewSQLite opens a SQLite-backed SQL store. path may be ":memory:".
func NewSQLite(path string) (*SQL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return newSQL(db, dialectSQLite), nil
}
