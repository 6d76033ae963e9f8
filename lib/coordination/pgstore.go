// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PGStore is a Store backed by a postgres table. Writes are
// last-writer-wins upserts, matching the consistency the rest of the
// core assumes.
type PGStore struct {
	DB *sqlx.DB
}

// Schema is the DDL for the coordination table, applied by the
// service's -setup-db path.
const Schema = `
CREATE TABLE IF NOT EXISTS coordination_state (
    path text PRIMARY KEY,
    value text NOT NULL DEFAULT '',
    updated_at timestamptz NOT NULL DEFAULT now()
);
`

// SetupDB creates the coordination table if it does not exist.
func (s *PGStore) SetupDB(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, Schema)
	if err != nil {
		return fmt.Errorf("create coordination_state: %w", err)
	}
	return nil
}

func (s *PGStore) Put(ctx context.Context, path, value string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO coordination_state (path, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET value = $2, updated_at = now()`,
		path, value)
	return err
}

func (s *PGStore) Get(ctx context.Context, path string) (string, bool, error) {
	var value string
	err := s.DB.QueryRowxContext(ctx, `
		SELECT value FROM coordination_state WHERE path = $1`,
		path).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *PGStore) Delete(ctx context.Context, path string) error {
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM coordination_state WHERE path = $1`, path)
	return err
}

func (s *PGStore) DeleteTree(ctx context.Context, path string) error {
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM coordination_state WHERE path = $1 OR path LIKE $2`,
		path, likeEscape(path)+"/%")
	return err
}

func (s *PGStore) List(ctx context.Context, path string) ([]string, error) {
	rows, err := s.DB.QueryxContext(ctx, `
		SELECT DISTINCT $1 || split_part(substring(path from char_length($1)+1), '/', 1)
		FROM coordination_state WHERE path LIKE $2 ORDER BY 1`,
		path+"/", likeEscape(path)+"/%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var children []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, rows.Err()
}

func likeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
