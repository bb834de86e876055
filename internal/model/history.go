package model

import "time"

type BidOutcome string

const (
	BidPlaced   BidOutcome = "placed"
	BidRejected BidOutcome = "rejected"
	BidFailed   BidOutcome = "failed"
	BidDryRun   BidOutcome = "dry_run"
)

type BidAttempt struct {
	ID          string     `json:"id"`
	ItemID      int64      `json:"itemId"`
	Title       string     `json:"title,omitempty"`
	Amount      string     `json:"amount"`
	Outcome     BidOutcome `json:"outcome"`
	Message     string     `json:"message,omitempty"`
	AttemptedAt time.Time  `json:"attemptedAt"`
}

type AlertEvent struct {
	ID        string        `json:"id"`
	ItemID    int64         `json:"itemId"`
	Title     string        `json:"title,omitempty"`
	Offset    time.Duration `json:"offset"`
	Remaining time.Duration `json:"remaining"`
	EmittedAt time.Time     `json:"emittedAt"`
}
