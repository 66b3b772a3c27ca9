package store

import (
	"context"
	"database/sql"
	"fmt"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Draft returns the address list the user is currently editing.
func (s *Store) Draft(ctx context.Context, userID int64) ([]string, error) {
	return loadDraft(ctx, s.db, userID)
}

// SaveDraft replaces the user's draft list.
func (s *Store) SaveDraft(ctx context.Context, userID int64, addresses []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := writeDraft(ctx, tx, userID, addresses); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateDraft reads the draft, applies edit and writes the result in one
// transaction, so concurrent edits by the same user cannot drop entries.
// When edit fails the current list is returned with edit's error unchanged.
func (s *Store) UpdateDraft(ctx context.Context, userID int64, edit func(current []string) ([]string, error)) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := loadDraft(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	next, err := edit(current)
	if err != nil {
		return current, err
	}
	if err := writeDraft(ctx, tx, userID, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit draft: %w", err)
	}
	return next, nil
}

func loadDraft(ctx context.Context, q queryer, userID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT address FROM draft_addresses WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: load draft: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("store: scan draft: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func writeDraft(ctx context.Context, tx *sql.Tx, userID int64, addresses []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM draft_addresses WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("store: clear draft: %w", err)
	}
	for i, a := range addresses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO draft_addresses (user_id, position, address) VALUES (?, ?, ?)`, userID, i, a); err != nil {
			return fmt.Errorf("store: insert draft: %w", err)
		}
	}
	return nil
}
