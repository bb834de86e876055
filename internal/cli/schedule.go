package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"goodwill_sniper/internal/model"
	"goodwill_sniper/internal/note"
	"goodwill_sniper/internal/provider/shopgoodwill"
)

func newScheduleBidCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule-bid ITEM_ID AMOUNT",
		Short: "Favorite an item and store the max bid in its note",
		Long: `Adds the item to the favorites of the command account (a no-op when it is
already there) and writes {"max_bid": AMOUNT} into its note, keeping any other
fields the note already has. A running sniper picks it up on its next refresh.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || itemID <= 0 {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			amount, err := decimal.NewFromString(args[1])
			if err != nil || !amount.IsPositive() {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			l, err := app.scheduleBid(cmd.Context(), itemID, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled max bid %s on %d (%s)\n", amount.StringFixed(2), l.ItemID, l.Title)
			return nil
		},
	}
}

func (a *App) scheduleBid(ctx context.Context, itemID int64, amount decimal.Decimal) (model.Listing, error) {
	client := a.marketplace(false)
	mgr := a.sessions(client)

	if err := mgr.Do(ctx, model.RoleCommand, func(s model.Session) error {
		return client.AddFavorite(ctx, s, itemID)
	}); err != nil {
		return model.Listing{}, err
	}

	l, err := findFavorite(ctx, client, mgr, itemID)
	if err != nil {
		return model.Listing{}, err
	}
	text, err := note.Encode(amount, note.Metadata(l.Note))
	if err != nil {
		return model.Listing{}, err
	}
	if err := mgr.Do(ctx, model.RoleCommand, func(s model.Session) error {
		return client.SetFavoriteNote(ctx, s, l.WatchlistID, text)
	}); err != nil {
		return model.Listing{}, err
	}
	a.Bus.Log("info", "bid scheduled", map[string]any{"itemId": itemID, "maxBid": amount.StringFixed(2), "title": l.Title})
	l.Note = text
	return l, nil
}

type sessionRunner interface {
	Do(ctx context.Context, role model.AccountRole, fn func(model.Session) error) error
}

func findFavorite(ctx context.Context, client *shopgoodwill.Client, sessions sessionRunner, itemID int64) (model.Listing, error) {
	var listings []model.Listing
	if err := sessions.Do(ctx, model.RoleCommand, func(s model.Session) error {
		var err error
		listings, err = client.FetchFavorites(ctx, s)
		return err
	}); err != nil {
		return model.Listing{}, err
	}
	for _, l := range listings {
		if l.ItemID == itemID {
			if l.WatchlistID == 0 {
				return model.Listing{}, fmt.Errorf("item %d has no watchlist id", itemID)
			}
			return l, nil
		}
	}
	return model.Listing{}, fmt.Errorf("item %d is not among the open favorites", itemID)
}
