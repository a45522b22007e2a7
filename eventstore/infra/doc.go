// Package infra implementa domain.Store sobre SQLite (github.com/mattn/go-sqlite3).
package infra
