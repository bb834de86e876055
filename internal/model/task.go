package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AlertKey struct {
	ItemID int64
	Offset time.Duration
}

type DueAlert struct {
	Listing   Listing
	Offset    time.Duration
	Remaining time.Duration
}

func (a DueAlert) Key() AlertKey {
	return AlertKey{ItemID: a.Listing.ItemID, Offset: a.Offset}
}

type BidIntent struct {
	ItemID   int64           `json:"itemId"`
	Title    string          `json:"title,omitempty"`
	SellerID int64           `json:"sellerId,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	EndTime  time.Time       `json:"endTime"`
}

type SchedulerPhase string

const (
	PhaseIdle        SchedulerPhase = "idle"
	PhaseTicking     SchedulerPhase = "ticking"
	PhaseDispatching SchedulerPhase = "dispatching"
)

type SchedulerState struct {
	Phase         SchedulerPhase `json:"phase"`
	DryRun        bool           `json:"dryRun"`
	LastTickMs    int64          `json:"lastTickMs,omitempty"`
	SnapshotAtMs  int64          `json:"snapshotAtMs,omitempty"`
	NextTickMs    int64          `json:"nextTickMs,omitempty"`
	Listings      int            `json:"listings"`
	AlertsSent    int            `json:"alertsSent"`
	BidsAttempted int            `json:"bidsAttempted"`
	LastError     string         `json:"lastError,omitempty"`
}
