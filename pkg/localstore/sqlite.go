package localstore

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	database *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS records (
    	name text not null primary key,
        content blob not null
		)`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}
	return &SQLite{database: db}, nil
}

func (s *SQLite) Load(name string) ([]byte, error) {
	var content []byte
	if err := s.database.QueryRow(`SELECT content FROM records WHERE name = ?`, name).Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	return content, nil
}

func (s *SQLite) Save(name string, data []byte) error {
	if _, err := s.database.Exec(
		`INSERT INTO records (name, content) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET content = excluded.content`,
		name, data,
	); err != nil {
		return fmt.Errorf("failed to persist record: %w", err)
	}
	return nil
}

func (s *SQLite) Remove(name string) error {
	if _, err := s.database.Exec(`DELETE FROM records WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.database.Close()
}
