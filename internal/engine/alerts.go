package engine

import (
	"sort"
	"time"

	"goodwill_sniper/internal/model"
)

// AlertLedger remembers which (item, offset) alerts were emitted during this
// process lifetime.
type AlertLedger map[model.AlertKey]struct{}

func (l AlertLedger) Sent(k model.AlertKey) bool {
	_, ok := l[k]
	return ok
}

func (l AlertLedger) Mark(k model.AlertKey) { l[k] = struct{}{} }

// DueAlerts lists the alerts of listings still running at now whose remaining time is within
// an offset and that were not sent yet, soonest-ending first. It records
// nothing; the caller marks each alert when it emits it.
func DueAlerts(snap model.Snapshot, now time.Time, offsets []time.Duration, sent AlertLedger) []model.DueAlert {
	var out []model.DueAlert
	seen := make(map[model.AlertKey]struct{})
	for _, l := range snap.Listings {
		remaining := l.Remaining(now)
		// a cached snapshot can still say open after the end time
		if !l.Open() || remaining <= 0 {
			continue
		}
		for _, d := range offsets {
			key := model.AlertKey{ItemID: l.ItemID, Offset: d}
			if remaining > d || sent.Sent(key) {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, model.DueAlert{Listing: l, Offset: d, Remaining: remaining})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Remaining != b.Remaining {
			return a.Remaining < b.Remaining
		}
		if a.Listing.ItemID != b.Listing.ItemID {
			return a.Listing.ItemID < b.Listing.ItemID
		}
		return a.Offset < b.Offset
	})
	return out
}
