package notify

import (
	"context"
	"errors"
	"time"

	"goodwill_sniper/internal/logbus"
)

type Kind string

const (
	KindAlert Kind = "alert"
	KindBid   Kind = "bid"
	KindError Kind = "error"
)

type Message struct {
	Kind   Kind      `json:"kind"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	ItemID int64     `json:"itemId,omitempty"`
	At     time.Time `json:"at"`
}

func (m Message) Text() string {
	if m.Body == "" {
		return m.Title
	}
	if m.Title == "" {
		return m.Body
	}
	return m.Title + " - " + m.Body
}

// Notifier delivers a user-facing message. Delivery is fire-and-forget: an
// error is reported to the caller for logging and never retried.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// BusNotifier publishes messages on the log bus, which also reaches the log
// file and the status stream.
type BusNotifier struct {
	Bus *logbus.Bus
}

func (b BusNotifier) Notify(_ context.Context, msg Message) error {
	if b.Bus == nil {
		return nil
	}
	b.Bus.Publish("notify", msg)
	level := "warn"
	if msg.Kind == KindError {
		level = "error"
	}
	b.Bus.Log(level, msg.Text(), map[string]any{"kind": string(msg.Kind), "itemId": msg.ItemID})
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
