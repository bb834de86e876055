package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type AuctionState string

const (
	AuctionOpen   AuctionState = "open"
	AuctionClosed AuctionState = "closed"
)

type Listing struct {
	ItemID        int64           `json:"itemId"`
	Title         string          `json:"title"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	EndTime       time.Time       `json:"endTime"`
	State         AuctionState    `json:"state"`
	Note          string          `json:"note,omitempty"`
	LeadingBidder string          `json:"leadingBidder,omitempty"`
	SellerID      int64           `json:"sellerId,omitempty"`
	WatchlistID   int64           `json:"watchlistId,omitempty"`
}

func (l Listing) Open() bool { return l.State == AuctionOpen }

func (l Listing) Remaining(now time.Time) time.Duration {
	return l.EndTime.Sub(now)
}

// Snapshot is never mutated after NewSnapshot returns.
type Snapshot struct {
	Listings  []Listing `json:"listings"`
	FetchedAt time.Time `json:"fetchedAt"`
}

func NewSnapshot(listings []Listing, fetchedAt time.Time) Snapshot {
	out := make([]Listing, len(listings))
	copy(out, listings)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return Snapshot{Listings: out, FetchedAt: fetchedAt}
}

func (s Snapshot) Empty() bool { return s.FetchedAt.IsZero() }

func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

func (s Snapshot) Lookup(itemID int64) (Listing, bool) {
	i := sort.Search(len(s.Listings), func(i int) bool { return s.Listings[i].ItemID >= itemID })
	if i < len(s.Listings) && s.Listings[i].ItemID == itemID {
		return s.Listings[i], true
	}
	return Listing{}, false
}
