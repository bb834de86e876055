package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"goodwill_sniper/internal/config"
	"goodwill_sniper/internal/logbus"
	"goodwill_sniper/internal/model"
	"goodwill_sniper/internal/note"
	"goodwill_sniper/internal/notify"
	"goodwill_sniper/internal/provider"
)

// Favorites is the snapshot source of the loop.
type Favorites interface {
	Get(ctx context.Context, force bool) (model.Snapshot, error)
	Fallback() model.Snapshot
}

// Sessions runs a call with the session of an account role, refreshing it
// once if the marketplace refuses it.
type Sessions interface {
	Do(ctx context.Context, role model.AccountRole, fn func(model.Session) error) error
}

// AuditLog keeps a history of what the loop did. It is never read back for
// deduplication.
type AuditLog interface {
	RecordBidAttempt(ctx context.Context, a model.BidAttempt) error
	RecordAlertEvent(ctx context.Context, e model.AlertEvent) error
}

type Options struct {
	Favorites Favorites
	Sessions  Sessions
	Bids      provider.BidTransport
	Notes     provider.NoteTransport
	Notifier  notify.Notifier
	Audit     AuditLog
	Bus       *logbus.Bus

	Sniper  config.SniperConfig
	Friends []string
	DryRun  bool

	Now   func() time.Time
	Sleep func(ctx context.Context, until time.Time) bool
}

// DispatchError is a single alert or bid that could not be delivered. It
// never aborts a tick.
type DispatchError struct {
	Kind   notify.Kind
	ItemID int64
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s for item %d: %v", e.Kind, e.ItemID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

type Engine struct {
	favorites Favorites
	sessions  Sessions
	bids      provider.BidTransport
	notes     provider.NoteTransport
	notifier  notify.Notifier
	audit     AuditLog
	bus       *logbus.Bus

	refresh    time.Duration
	snipeDelta time.Duration
	offsets    []time.Duration
	defNote    string
	precise    bool
	friends    FriendList
	dryRun     bool

	now   func() time.Time
	sleep func(ctx context.Context, until time.Time) bool

	// owned by the loop goroutine
	alerts    AlertLedger
	attempted AttemptLedger
	noted     map[int64]struct{}
	last      model.Snapshot

	mu    sync.Mutex
	state model.SchedulerState
}

func New(opts Options) *Engine {
	e := &Engine{
		favorites:  opts.Favorites,
		sessions:   opts.Sessions,
		bids:       opts.Bids,
		notes:      opts.Notes,
		notifier:   opts.Notifier,
		audit:      opts.Audit,
		bus:        opts.Bus,
		refresh:    opts.Sniper.RefreshInterval(),
		snipeDelta: opts.Sniper.SnipeDelta(),
		offsets:    opts.Sniper.AlertOffsets(),
		defNote:    opts.Sniper.FavoriteDefaultNote,
		precise:    opts.Sniper.PreciseWakeupsEnabled(),
		friends:    NewFriendList(opts.Friends),
		dryRun:     opts.DryRun,
		now:        opts.Now,
		sleep:      opts.Sleep,
		alerts:     make(AlertLedger),
		attempted:  make(AttemptLedger),
		noted:      make(map[int64]struct{}),
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepUntil
	}
	if e.notifier == nil {
		e.notifier = notify.BusNotifier{Bus: e.bus}
	}
	e.state = model.SchedulerState{Phase: model.PhaseIdle, DryRun: e.dryRun}
	return e
}

// Run ticks until ctx is cancelled. Cancellation only takes effect between
// ticks or while sleeping.
func (e *Engine) Run(ctx context.Context) error {
	e.log("info", "sniper started", map[string]any{
		"dryRun":         e.dryRun,
		"refreshSeconds": int(e.refresh / time.Second),
		"snipeDelta":     e.snipeDelta.String(),
		"alertOffsets":   len(e.offsets),
		"friends":        len(e.friends),
	})
	for {
		if ctx.Err() != nil {
			e.log("info", "sniper stopped", nil)
			return nil
		}
		_ = e.Tick(ctx)

		next := e.NextWake(e.now())
		e.mu.Lock()
		e.state.NextTickMs = next.UnixMilli()
		e.publishStateLocked()
		e.mu.Unlock()

		if !e.sleep(ctx, next) {
			e.log("info", "sniper stopped", nil)
			return nil
		}
	}
}

// Tick runs one pass: read favorites, decide, dispatch. The returned error
// is the favorites failure of the tick, if any; dispatch failures are only
// logged and notified.
func (e *Engine) Tick(ctx context.Context) error {
	now := e.now()
	e.setPhase(model.PhaseTicking, func(s *model.SchedulerState) { s.LastTickMs = now.UnixMilli() })

	var tickErr error
	bidsAllowed := true
	snap, err := e.favorites.Get(ctx, false)
	if err != nil {
		tickErr = err
		bidsAllowed = false
		snap = e.favorites.Fallback()
		e.log("warn", "favorites refresh failed, alerting from previous snapshot", map[string]any{
			"error":        err.Error(),
			"snapshotAgeS": int(snap.Age(now) / time.Second),
			"hasSnapshot":  !snap.Empty(),
		})
	}

	alerts := DueAlerts(snap, now, e.offsets, e.alerts)

	var bids []model.BidIntent
	if bidsAllowed {
		planned := PlanBids(snap, now, e.snipeDelta, e.friends, e.attempted)
		if len(planned) > 0 {
			fresh, err := e.favorites.Get(ctx, true)
			if err != nil {
				tickErr = err
				e.log("error", "favorites refresh before bidding failed, no bids this tick", map[string]any{
					"error":   err.Error(),
					"planned": len(planned),
				})
			} else {
				snap = fresh
				bidNow := e.now()
				bids = DueBids(fresh, bidNow, e.snipeDelta, e.friends, e.attempted)
				e.logDropped(planned, bids, fresh, bidNow)
			}
		}
	}

	if len(alerts) > 0 || len(bids) > 0 {
		e.setPhase(model.PhaseDispatching, nil)
	}
	for _, a := range alerts {
		e.alerts.Mark(a.Key())
		e.dispatchAlert(ctx, a)
	}
	for _, b := range bids {
		e.dispatchBid(ctx, b)
	}
	if bidsAllowed && tickErr == nil {
		e.applyDefaultNotes(ctx, snap)
	}

	if !snap.Empty() {
		e.last = snap
	}
	e.setPhase(model.PhaseIdle, func(s *model.SchedulerState) {
		s.SnapshotAtMs = snap.FetchedAt.UnixMilli()
		if snap.Empty() {
			s.SnapshotAtMs = 0
		}
		s.Listings = len(snap.Listings)
		s.AlertsSent += len(alerts)
		s.BidsAttempted += len(bids)
		s.LastError = ""
		if tickErr != nil {
			s.LastError = tickErr.Error()
		}
	})
	return tickErr
}

// NextWake is now plus the refresh interval, pulled earlier to the first
// pending alert or snipe instant inside that window.
func (e *Engine) NextWake(now time.Time) time.Time {
	next := now.Add(e.refresh)
	if !e.precise {
		return next
	}
	consider := func(t time.Time) {
		if t.After(now) && t.Before(next) {
			next = t
		}
	}
	for _, l := range e.last.Listings {
		if !l.Open() || !l.EndTime.After(now) {
			continue
		}
		for _, d := range e.offsets {
			if !e.alerts.Sent(model.AlertKey{ItemID: l.ItemID, Offset: d}) {
				consider(l.EndTime.Add(-d))
			}
		}
		if e.attempted.Attempted(l.ItemID) {
			continue
		}
		if maxBid, ok := note.Parse(l.Note); ok && maxBid.GreaterThan(l.CurrentPrice) {
			consider(l.EndTime.Add(-e.snipeDelta))
		}
	}
	return next
}

func (e *Engine) State() model.SchedulerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Attempted reports whether a bid was attempted on the item in this process.
func (e *Engine) Attempted(itemID int64) bool { return e.attempted.Attempted(itemID) }

func (e *Engine) dispatchAlert(ctx context.Context, a model.DueAlert) {
	remaining := a.Remaining.Truncate(time.Second)
	if remaining < 0 {
		remaining = 0
	}
	msg := notify.Message{
		Kind:   notify.KindAlert,
		Title:  "Time alert",
		Body:   fmt.Sprintf("%s ending in %s", a.Listing.Title, remaining),
		ItemID: a.Listing.ItemID,
		At:     e.now(),
	}
	if err := e.notifier.Notify(ctx, msg); err != nil {
		derr := &DispatchError{Kind: notify.KindAlert, ItemID: a.Listing.ItemID, Err: err}
		e.log("error", "alert delivery failed", map[string]any{"itemId": a.Listing.ItemID, "error": derr.Error()})
	}
	if e.audit != nil {
		evt := model.AlertEvent{
			ItemID:    a.Listing.ItemID,
			Title:     a.Listing.Title,
			Offset:    a.Offset,
			Remaining: a.Remaining,
			EmittedAt: msg.At,
		}
		if err := e.audit.RecordAlertEvent(ctx, evt); err != nil {
			e.log("warn", "alert history write failed", map[string]any{"itemId": a.Listing.ItemID, "error": err.Error()})
		}
	}
}

func (e *Engine) dispatchBid(ctx context.Context, intent model.BidIntent) {
	amount := intent.Amount.StringFixed(2)
	attempt := model.BidAttempt{
		ItemID:      intent.ItemID,
		Title:       intent.Title,
		Amount:      amount,
		AttemptedAt: e.now(),
	}
	fields := map[string]any{"itemId": intent.ItemID, "title": intent.Title, "amount": amount}

	msg := notify.Message{Kind: notify.KindBid, ItemID: intent.ItemID, At: attempt.AttemptedAt}
	if e.dryRun {
		attempt.Outcome = model.BidDryRun
		msg.Title = "DRY-RUN: bid not placed"
		msg.Body = fmt.Sprintf("Would bid %s on %s", amount, intent.Title)
		e.log("warn", "DRY-RUN: placing bid", fields)
	} else {
		var res provider.BidResult
		err := e.sessions.Do(ctx, model.RoleBid, func(s model.Session) error {
			var err error
			res, err = e.bids.PlaceBid(ctx, s, intent)
			return err
		})
		attempt.Message = res.Message
		switch {
		case err == nil:
			attempt.Outcome = model.BidPlaced
			msg.Title = "Bid placed"
			msg.Body = fmt.Sprintf("Placed bid of %s on %s", amount, intent.Title)
			if res.Message != "" {
				msg.Body += ": " + res.Message
			}
			e.log("warn", "bid placed", fields)
		default:
			derr := &DispatchError{Kind: notify.KindBid, ItemID: intent.ItemID, Err: err}
			attempt.Outcome = model.BidFailed
			if errors.Is(err, provider.ErrBidRejected) {
				attempt.Outcome = model.BidRejected
			}
			if attempt.Message == "" {
				attempt.Message = err.Error()
			}
			msg.Kind = notify.KindError
			msg.Title = "Bid failed"
			msg.Body = fmt.Sprintf("Bid of %s on %s failed: %v", amount, intent.Title, err)
			fields["error"] = derr.Error()
			fields["outcome"] = string(attempt.Outcome)
			e.log("error", "bid failed", fields)
		}
	}

	if err := e.notifier.Notify(ctx, msg); err != nil {
		e.log("error", "bid notification failed", map[string]any{"itemId": intent.ItemID, "error": err.Error()})
	}
	if e.audit != nil {
		if err := e.audit.RecordBidAttempt(ctx, attempt); err != nil {
			e.log("warn", "bid history write failed", map[string]any{"itemId": intent.ItemID, "error": err.Error()})
		}
	}
}

// logDropped explains planned bids that the fresh snapshot cancelled.
func (e *Engine) logDropped(planned, kept []model.BidIntent, fresh model.Snapshot, now time.Time) {
	keep := make(map[int64]struct{}, len(kept))
	for _, b := range kept {
		keep[b.ItemID] = struct{}{}
	}
	for _, p := range planned {
		if _, ok := keep[p.ItemID]; ok {
			continue
		}
		reason := "no longer in favorites"
		if l, ok := fresh.Lookup(p.ItemID); ok {
			_, skip := Decide(l, now, e.snipeDelta, e.friends, e.attempted)
			reason = string(skip)
			if skip == SkipFriendLeading {
				reason += " (" + l.LeadingBidder + ")"
			}
		}
		e.log("info", "bid cancelled after refresh", map[string]any{"itemId": p.ItemID, "title": p.Title, "reason": reason})
	}
}

// applyDefaultNotes gives note-less favorites the configured default note,
// once per item per process.
func (e *Engine) applyDefaultNotes(ctx context.Context, snap model.Snapshot) {
	if e.defNote == "" || e.dryRun || e.notes == nil {
		return
	}
	for _, l := range snap.Listings {
		if l.Note != "" || l.WatchlistID == 0 || !l.Open() {
			continue
		}
		if _, done := e.noted[l.ItemID]; done {
			continue
		}
		e.noted[l.ItemID] = struct{}{}
		err := e.sessions.Do(ctx, model.RoleCommand, func(s model.Session) error {
			return e.notes.SetFavoriteNote(ctx, s, l.WatchlistID, e.defNote)
		})
		if err != nil {
			e.log("warn", "default note not applied", map[string]any{"itemId": l.ItemID, "error": err.Error()})
			continue
		}
		e.log("info", "default note applied", map[string]any{"itemId": l.ItemID, "title": l.Title})
	}
}

func (e *Engine) setPhase(p model.SchedulerPhase, mutate func(*model.SchedulerState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Phase = p
	if mutate != nil {
		mutate(&e.state)
	}
	e.publishStateLocked()
}

func (e *Engine) publishStateLocked() {
	if e.bus != nil {
		e.bus.Publish("state", e.state)
	}
}

func (e *Engine) log(level, msg string, fields map[string]any) {
	if e.bus != nil {
		e.bus.Log(level, msg, fields)
	}
}

func sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
