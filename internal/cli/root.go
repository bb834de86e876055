// Package cli provides the sniper command line.
package cli

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"goodwill_sniper/internal/config"
	"goodwill_sniper/internal/logbus"
	"goodwill_sniper/internal/logging"
)

// App holds what every command needs once the config is loaded.
type App struct {
	Config config.Config
	Logger zerolog.Logger
	Bus    *logbus.Bus

	configPath string
	debug      bool
	logCloser  io.Closer
}

// Execute runs the command line and releases the logger and bus afterwards.
func Execute(ctx context.Context, args []string) error {
	app := &App{}
	root := NewRootCmd(app)
	root.SetArgs(args)
	defer app.close()
	return root.ExecuteContext(ctx)
}

func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "sniper",
		Short:         "Alert on and snipe ShopGoodwill auctions from your favorites",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return app.init()
		},
	}
	root.PersistentFlags().StringVar(&app.configPath, "config", "config.yaml", "path to the config file (YAML or JSON)")
	root.PersistentFlags().BoolVar(&app.debug, "debug", false, "enable debug logging")

	root.AddCommand(newRunCmd(app))
	root.AddCommand(newScheduleBidCmd(app))
	root.AddCommand(newFavoritesCmd(app))
	root.AddCommand(newAuthCmd(app))
	return root
}

func (a *App) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.Logger, a.logCloser = logging.New(cfg.Logging, a.debug)
	a.Bus = logbus.New(500)
	a.Bus.SetLogger(a.Logger)
	return nil
}

func (a *App) close() {
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
