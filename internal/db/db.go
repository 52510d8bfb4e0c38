package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the local sqlite database. Writes go through a single
// connection so sqlite never sees concurrent writers; reads use a small pool.
type Store struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)

	writer, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer %s: %w", path, err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite3", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader %s: %w", path, err)
	}
	reader.SetMaxOpenConns(4)

	s := &Store{Writer: writer, Reader: reader, path: path}
	if err := s.createSchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file the store was opened with.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	rerr := s.Reader.Close()
	werr := s.Writer.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
