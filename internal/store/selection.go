// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store persists the process-wide current-selection record so
// restarts resume the same provider. The record is one row; absence of the
// database or the row is not an error.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS current_selection (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	model_id TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// SelectionStore is the durable single-record store.
type SelectionStore struct {
	db *sql.DB
}

// Open creates or opens the selection database at path.
func Open(path string) (*SelectionStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("selection store: create state dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("selection store: open %s: %w", path, err)
	}
	s, err := NewWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle; tests use this with sqlmock.
func NewWithDB(db *sql.DB) (*SelectionStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("selection store: ensure schema: %w", err)
	}
	return &SelectionStore{db: db}, nil
}

// Load returns the persisted model id, or defaultID when no row exists.
func (s *SelectionStore) Load(defaultID string) (string, error) {
	var modelID string
	err := s.db.QueryRow(`SELECT model_id FROM current_selection WHERE id = 1`).Scan(&modelID)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debugf("no persisted selection, using default %s", defaultID)
		return defaultID, nil
	}
	if err != nil {
		return "", fmt.Errorf("selection store: load: %w", err)
	}
	return modelID, nil
}

// Save upserts the single selection row.
func (s *SelectionStore) Save(modelID string) error {
	_, err := s.db.Exec(
		`INSERT INTO current_selection (id, model_id, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET model_id = excluded.model_id, updated_at = excluded.updated_at`,
		modelID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("selection store: save %s: %w", modelID, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SelectionStore) Close() error {
	return s.db.Close()
}
