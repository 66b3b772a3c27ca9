package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const defaultPlanLimit = 10

// Plan is a stored optimize result.
type Plan struct {
	ID         string
	UserID     int64
	Addresses  []string
	Order      []string
	Distance   string
	DistanceKm float64
	MapHTML    string
	CreatedAt  time.Time
}

// SavePlan stores a plan. CreatedAt defaults to the store clock.
func (s *Store) SavePlan(ctx context.Context, p Plan) (Plan, error) {
	if p.ID == "" {
		return Plan{}, errors.New("store: plan id is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.CreatedAt = fromMillis(unixMillis(p.CreatedAt))

	addresses, err := json.Marshal(p.Addresses)
	if err != nil {
		return Plan{}, err
	}
	order, err := json.Marshal(p.Order)
	if err != nil {
		return Plan{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans (id, user_id, addresses, route_order, distance, distance_km, map_html, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, string(addresses), string(order), p.Distance, p.DistanceKm, p.MapHTML, unixMillis(p.CreatedAt))
	if err != nil {
		return Plan{}, fmt.Errorf("store: insert plan: %w", err)
	}
	return p, nil
}

// GetPlan returns a plan owned by the user.
func (s *Store) GetPlan(ctx context.Context, userID int64, id string) (Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, addresses, route_order, distance, distance_km, map_html, created_at
		 FROM plans WHERE id = ? AND user_id = ?`, id, userID)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Plan{}, ErrNotFound
	}
	return p, err
}

// ListPlans returns the user's most recent plans, newest first.
func (s *Store) ListPlans(ctx context.Context, userID int64, limit int) ([]Plan, error) {
	if limit <= 0 {
		limit = defaultPlanLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, addresses, route_order, distance, distance_km, map_html, created_at
		 FROM plans WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (Plan, error) {
	var (
		p                Plan
		addresses, order string
		created          int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &addresses, &order, &p.Distance, &p.DistanceKm, &p.MapHTML, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Plan{}, err
		}
		return Plan{}, fmt.Errorf("store: scan plan: %w", err)
	}
	if err := json.Unmarshal([]byte(addresses), &p.Addresses); err != nil {
		return Plan{}, fmt.Errorf("store: decode plan addresses: %w", err)
	}
	if err := json.Unmarshal([]byte(order), &p.Order); err != nil {
		return Plan{}, fmt.Errorf("store: decode plan order: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}
