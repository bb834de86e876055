package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"goodwill_sniper/internal/engine"
	"goodwill_sniper/internal/favorites"
	"goodwill_sniper/internal/httpapi"
	"goodwill_sniper/internal/store/sqlite"
)

func newRunCmd(app *App) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll favorites, send time alerts and snipe bids until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.run(ctx, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log bids instead of placing them")
	return cmd
}

func (a *App) run(ctx context.Context, dryRun bool) error {
	cfg := a.Config
	client := a.marketplace(true)
	mgr := a.sessions(client)
	if err := mgr.Start(ctx); err != nil {
		return err
	}

	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	notifier, closeNotifiers, err := a.notifiers()
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := closeNotifiers(flushCtx); err != nil {
			a.Bus.Log("warn", "notifier flush incomplete", map[string]any{"error": err.Error()})
		}
	}()

	cache := favorites.New(favorites.Options{
		Transport: client,
		Sessions:  mgr,
		MaxAge:    cfg.Sniper.FavoritesMaxAge(),
		Bus:       a.Bus,
	})
	eng := engine.New(engine.Options{
		Favorites: cache,
		Sessions:  mgr,
		Bids:      client,
		Notes:     client,
		Notifier:  notifier,
		Audit:     store,
		Bus:       a.Bus,
		Sniper:    cfg.Sniper,
		Friends:   cfg.FriendList,
		DryRun:    dryRun,
	})

	if cfg.Status.Addr != "" {
		api := httpapi.New(httpapi.Options{
			Bus:          a.Bus,
			State:        eng,
			Snapshots:    cache,
			History:      store,
			AllowOrigins: cfg.Status.AllowOrigins,
		})
		go func() {
			if err := api.ListenAndServe(ctx, cfg.Status.Addr); err != nil {
				a.Bus.Log("error", "status server stopped", map[string]any{"error": err.Error()})
			}
		}()
	}

	return eng.Run(ctx)
}
