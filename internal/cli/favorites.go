package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"goodwill_sniper/internal/model"
	"goodwill_sniper/internal/note"
)

func newFavoritesCmd(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "List open favorites with their time left and scheduled max bid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client := app.marketplace(false)
			mgr := app.sessions(client)
			var listings []model.Listing
			if err := mgr.Do(ctx, model.RoleCommand, func(s model.Session) error {
				var err error
				listings, err = client.FetchFavorites(ctx, s)
				return err
			}); err != nil {
				return err
			}
			snap := model.NewSnapshot(listings, time.Now())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap.Listings)
			}
			return printFavorites(cmd.OutOrStdout(), snap, time.Now())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print listings as JSON")
	return cmd
}

func printFavorites(w io.Writer, snap model.Snapshot, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tPRICE\tLEFT\tMAX BID\tTITLE")
	for _, l := range snap.Listings {
		maxBid := "-"
		if v, ok := note.Parse(l.Note); ok {
			maxBid = v.StringFixed(2)
		}
		left := l.Remaining(now).Truncate(time.Second)
		if !l.Open() || left < 0 {
			left = 0
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", l.ItemID, l.CurrentPrice.StringFixed(2), left, maxBid, l.Title)
	}
	return tw.Flush()
}
