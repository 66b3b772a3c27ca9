package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Location is an address a user has optimized before.
type Location struct {
	ID        int64
	UserID    int64
	Address   string
	CreatedAt time.Time
}

// SaveLocations records addresses for the user, skipping ones already saved.
func (s *Store) SaveLocations(ctx context.Context, userID int64, addresses []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := unixMillis(s.now())
	for _, address := range addresses {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO locations (user_id, address, created_at) VALUES (?, ?, ?)`,
			userID, address, now); err != nil {
			return fmt.Errorf("store: insert location: %w", err)
		}
	}
	return tx.Commit()
}

// ListLocations returns the user's saved locations in insertion order.
func (s *Store) ListLocations(ctx context.Context, userID int64) ([]Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, address, created_at FROM locations WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list locations: %w", err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var (
			loc     Location
			created int64
		)
		if err := rows.Scan(&loc.ID, &loc.UserID, &loc.Address, &created); err != nil {
			return nil, fmt.Errorf("store: scan location: %w", err)
		}
		loc.CreatedAt = fromMillis(created)
		out = append(out, loc)
	}
	return out, rows.Err()
}

// DeleteLocation removes one of the user's saved locations.
func (s *Store) DeleteLocation(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("store: delete location: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
