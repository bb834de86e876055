package engine

import (
	"sort"
	"strings"
	"time"

	"goodwill_sniper/internal/model"
	"goodwill_sniper/internal/note"
)

// FriendList holds masked usernames ("a****b") whose leads are never outbid.
// Matching is case-sensitive.
type FriendList map[string]struct{}

func NewFriendList(names []string) FriendList {
	out := make(FriendList, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

func (f FriendList) Contains(name string) bool {
	if name == "" {
		return false
	}
	_, ok := f[name]
	return ok
}

// AttemptLedger remembers the items a bid was attempted on during this
// process lifetime, whatever the outcome.
type AttemptLedger map[int64]struct{}

func (l AttemptLedger) Attempted(itemID int64) bool {
	_, ok := l[itemID]
	return ok
}

func (l AttemptLedger) Mark(itemID int64) { l[itemID] = struct{}{} }

// Skip tells why a listing gets no bid.
type Skip string

const (
	SkipNone          Skip = ""
	SkipClosed        Skip = "closed"
	SkipNotInWindow   Skip = "not_in_window"
	SkipNoMaxBid      Skip = "no_max_bid"
	SkipAtCeiling     Skip = "price_at_ceiling"
	SkipFriendLeading Skip = "friend_leading"
	SkipAttempted     Skip = "already_attempted"
)

// Decide evaluates one listing. The intent is only meaningful when the skip
// reason is SkipNone.
func Decide(l model.Listing, now time.Time, snipeDelta time.Duration, friends FriendList, attempted AttemptLedger) (model.BidIntent, Skip) {
	remaining := l.Remaining(now)
	switch {
	case !l.Open() || remaining <= 0:
		return model.BidIntent{}, SkipClosed
	case remaining > snipeDelta:
		return model.BidIntent{}, SkipNotInWindow
	}
	maxBid, ok := note.Parse(l.Note)
	if !ok {
		return model.BidIntent{}, SkipNoMaxBid
	}
	if !maxBid.GreaterThan(l.CurrentPrice) {
		return model.BidIntent{}, SkipAtCeiling
	}
	if friends.Contains(l.LeadingBidder) {
		return model.BidIntent{}, SkipFriendLeading
	}
	if attempted.Attempted(l.ItemID) {
		return model.BidIntent{}, SkipAttempted
	}
	return model.BidIntent{
		ItemID:   l.ItemID,
		Title:    l.Title,
		SellerID: l.SellerID,
		Amount:   maxBid,
		EndTime:  l.EndTime,
	}, SkipNone
}

// PlanBids returns the bids due now, soonest-ending first. It has no side
// effects.
func PlanBids(snap model.Snapshot, now time.Time, snipeDelta time.Duration, friends FriendList, attempted AttemptLedger) []model.BidIntent {
	var out []model.BidIntent
	for _, l := range snap.Listings {
		if intent, skip := Decide(l, now, snipeDelta, friends, attempted); skip == SkipNone {
			out = append(out, intent)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EndTime.Equal(out[j].EndTime) {
			return out[i].EndTime.Before(out[j].EndTime)
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

// DueBids is PlanBids followed by recording every returned item as attempted,
// before anything is submitted.
func DueBids(snap model.Snapshot, now time.Time, snipeDelta time.Duration, friends FriendList, attempted AttemptLedger) []model.BidIntent {
	out := PlanBids(snap, now, snipeDelta, friends, attempted)
	for _, b := range out {
		attempted.Mark(b.ItemID)
	}
	return out
}
