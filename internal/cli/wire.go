package cli

import (
	"context"
	"time"

	"goodwill_sniper/internal/auth"
	"goodwill_sniper/internal/notify"
	"goodwill_sniper/internal/provider/shopgoodwill"
)

// marketplace builds the buyer API client. Leading bidders are only looked up
// for the run loop, and only when there is a friend list to protect.
func (a *App) marketplace(forLoop bool) *shopgoodwill.Client {
	opts := shopgoodwill.Options{}
	if forLoop && len(a.Config.FriendList) > 0 {
		opts.LookupLeaders = true
		opts.LeaderWindow = leaderWindow(a.Config.Provider.LeaderLookahead.Std(), a.Config.Sniper.SnipeDelta())
	}
	return shopgoodwill.New(a.Config.Provider, a.Bus, opts)
}

// leaderWindow covers at least two snipe windows so the leader is known on
// the tick that plans a bid and on the forced refresh before it.
func leaderWindow(lookahead, snipeDelta time.Duration) time.Duration {
	if w := 2 * snipeDelta; w > lookahead {
		return w
	}
	return lookahead
}

func (a *App) sessions(client *shopgoodwill.Client) *auth.Manager {
	return auth.NewManager(client, a.Config.Auth, a.Bus, nil)
}

// notifiers always logs to the bus and adds Gotify and email when
// configured. The returned close flushes queued email.
func (a *App) notifiers() (notify.Notifier, func(context.Context) error, error) {
	out := notify.Multi{notify.BusNotifier{Bus: a.Bus}}
	closeFn := func(context.Context) error { return nil }

	if g := a.Config.Notify.Gotify; g.Enabled() {
		out = append(out, notify.NewGotifyNotifier(g))
	}
	if e := a.Config.Notify.Email; e.Enabled {
		n, err := notify.NewEmailNotifier(e, a.Bus)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, n)
		closeFn = n.Close
	}
	return out, closeFn, nil
}
