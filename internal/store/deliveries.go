package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Delivery statuses. A row starts queued when the dispatcher hands the job
// to the courier and reaches exactly one terminal state via the callback
// handler.
const (
	StatusQueued    = "queued"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// DeliveryEvent is one (destination, event) delivery record.
type DeliveryEvent struct {
	DestinationID string
	EventID       string
	EventType     string
	Status        string
	HTTPStatus    int
	LastError     string
	Attempts      int
	EnqueuedAt    time.Time
	RecordedAt    time.Time
}

// Deliveries persists delivery records keyed by (destination_id, event_id).
type Deliveries struct {
	pool *pgxpool.Pool
}

func NewDeliveries(pool *pgxpool.Pool) *Deliveries {
	return &Deliveries{pool: pool}
}

// CreateQueued records that a job was handed to the courier. Re-dispatching
// the same (destination, event) pair is a no-op.
func (d *Deliveries) CreateQueued(ctx context.Context, destinationID, eventID, eventType string) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO pagehook.delivery_events(destination_id, event_id, event_type, status)
		VALUES ($1, $2, $3, 'queued')
		ON CONFLICT (destination_id, event_id) DO NOTHING`,
		destinationID, eventID, eventType)
	if err != nil {
		return fmt.Errorf("create queued delivery: %w", err)
	}
	return nil
}

// RecordResult writes the terminal state for one delivery. The upsert only
// applies while the row is absent or still queued, so the at-least-once
// callbacks from the courier collapse to a single terminal record. It
// returns false when the row was already terminal (a duplicate callback).
func (d *Deliveries) RecordResult(ctx context.Context, destinationID, eventID, eventType, status string, httpStatus int, lastError string, attempts int) (bool, error) {
	ct, err := d.pool.Exec(ctx, `
		INSERT INTO pagehook.delivery_events(destination_id, event_id, event_type, status, http_status, last_error, attempts, recorded_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, ''), $7, now())
		ON CONFLICT (destination_id, event_id) DO UPDATE
		SET status = EXCLUDED.status,
		    http_status = EXCLUDED.http_status,
		    last_error = EXCLUDED.last_error,
		    attempts = EXCLUDED.attempts,
		    recorded_at = now()
		WHERE pagehook.delivery_events.status = 'queued'`,
		destinationID, eventID, eventType, status, httpStatus, lastError, attempts)
	if err != nil {
		return false, fmt.Errorf("record delivery result: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// ListByEvent returns all delivery records for one event id.
func (d *Deliveries) ListByEvent(ctx context.Context, eventID string) ([]DeliveryEvent, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT destination_id, event_id, event_type, status, http_status, last_error, attempts, enqueued_at, recorded_at
		FROM pagehook.delivery_events
		WHERE event_id = $1
		ORDER BY enqueued_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []DeliveryEvent
	for rows.Next() {
		var (
			ev         DeliveryEvent
			httpStatus sql.NullInt32
			lastErr    sql.NullString
			recorded   sql.NullTime
		)
		if err := rows.Scan(&ev.DestinationID, &ev.EventID, &ev.EventType, &ev.Status, &httpStatus, &lastErr, &ev.Attempts, &ev.EnqueuedAt, &recorded); err != nil {
			return nil, err
		}
		if httpStatus.Valid {
			ev.HTTPStatus = int(httpStatus.Int32)
		}
		if lastErr.Valid {
			ev.LastError = lastErr.String
		}
		if recorded.Valid {
			ev.RecordedAt = recorded.Time
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
