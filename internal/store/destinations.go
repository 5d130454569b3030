package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Destination is one registered third-party subscriber. Secret is an opaque
// signing key and must never appear in logs.
type Destination struct {
	ID        string
	TeamID    string
	URL       string
	Secret    string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Destinations reads and manages webhook destination records. The dispatch
// path only ever reads; writes happen through hookctl and the auto-disable
// policy.
type Destinations struct {
	pool *pgxpool.Pool
}

func NewDestinations(pool *pgxpool.Pool) *Destinations {
	return &Destinations{pool: pool}
}

// ListEnabledByTeam returns the enabled destinations for a team, in no
// particular order.
func (d *Destinations) ListEnabledByTeam(ctx context.Context, teamID string) ([]Destination, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, team_id, url, secret, enabled, created_at, updated_at
		FROM pagehook.destinations
		WHERE team_id = $1 AND enabled`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var out []Destination
	for rows.Next() {
		var dst Destination
		if err := rows.Scan(&dst.ID, &dst.TeamID, &dst.URL, &dst.Secret, &dst.Enabled, &dst.CreatedAt, &dst.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, dst)
	}
	return out, rows.Err()
}

// ListByTeam returns all of a team's destinations, enabled or not.
func (d *Destinations) ListByTeam(ctx context.Context, teamID string) ([]Destination, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, team_id, url, secret, enabled, created_at, updated_at
		FROM pagehook.destinations
		WHERE team_id = $1
		ORDER BY created_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var out []Destination
	for rows.Next() {
		var dst Destination
		if err := rows.Scan(&dst.ID, &dst.TeamID, &dst.URL, &dst.Secret, &dst.Enabled, &dst.CreatedAt, &dst.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, dst)
	}
	return out, rows.Err()
}

// Create inserts a destination and returns its generated id.
func (d *Destinations) Create(ctx context.Context, teamID, url, secret string) (string, error) {
	var id string
	err := d.pool.QueryRow(ctx, `
		INSERT INTO pagehook.destinations(team_id, url, secret)
		VALUES ($1, $2, $3)
		RETURNING id`, teamID, url, secret).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}
	return id, nil
}

// SetEnabled flips a destination's enabled flag.
func (d *Destinations) SetEnabled(ctx context.Context, id string, enabled bool) error {
	ct, err := d.pool.Exec(ctx, `
		UPDATE pagehook.destinations
		SET enabled = $2, updated_at = now()
		WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set destination enabled: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("destination %s not found", id)
	}
	return nil
}
