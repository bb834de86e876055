package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"goodwill_sniper/internal/model"
)

const defaultListLimit = 100

func (s *Store) RecordBidAttempt(ctx context.Context, a model.BidAttempt) error {
	if a.ItemID == 0 {
		return errors.New("itemId is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bid_attempts (id, item_id, title, amount, outcome, message, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ItemID, a.Title, a.Amount, string(a.Outcome), a.Message, a.AttemptedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert bid attempt for item %d: %w", a.ItemID, err)
	}
	return nil
}

func (s *Store) RecordAlertEvent(ctx context.Context, e model.AlertEvent) error {
	if e.ItemID == 0 {
		return errors.New("itemId is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EmittedAt.IsZero() {
		e.EmittedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_events (id, item_id, title, offset_ms, remaining_ms, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.ItemID, e.Title, e.Offset.Milliseconds(), e.Remaining.Milliseconds(), e.EmittedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert alert event for item %d: %w", e.ItemID, err)
	}
	return nil
}

// ListBidAttempts returns the newest attempts first.
func (s *Store) ListBidAttempts(ctx context.Context, limit int) ([]model.BidAttempt, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, title, amount, outcome, message, attempted_at
		FROM bid_attempts
		ORDER BY attempted_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.BidAttempt, 0)
	for rows.Next() {
		var (
			a       model.BidAttempt
			outcome string
			at      int64
		)
		if err := rows.Scan(&a.ID, &a.ItemID, &a.Title, &a.Amount, &outcome, &a.Message, &at); err != nil {
			return nil, err
		}
		a.Outcome = model.BidOutcome(outcome)
		a.AttemptedAt = time.UnixMilli(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAlertEvents returns the newest events first.
func (s *Store) ListAlertEvents(ctx context.Context, limit int) ([]model.AlertEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, title, offset_ms, remaining_ms, emitted_at
		FROM alert_events
		ORDER BY emitted_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.AlertEvent, 0)
	for rows.Next() {
		var e model.AlertEvent
		var offset, remain, at int64
		if err := rows.Scan(&e.ID, &e.ItemID, &e.Title, &offset, &remain, &at); err != nil {
			return nil, err
		}
		e.Offset = time.Duration(offset) * time.Millisecond
		e.Remaining = time.Duration(remain) * time.Millisecond
		e.EmittedAt = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
