package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alexanderramin/dax/internal/config"
	"github.com/alexanderramin/dax/internal/dataaccess"
)

// App holds the configuration and connection factory used by CLI commands.
type App struct {
	Config config.Config

	// ReadOnly selects read-only connections for every command.
	ReadOnly bool

	// Logger is built from Config when nil.
	Logger *slog.Logger

	// Factory is built in the root command's pre-run hook.
	Factory *dataaccess.Factory

	// IsInteractive reports whether stdin is a terminal. When true, running
	// dax with no subcommand starts the shell.
	IsInteractive func() bool

	// IsTerminalOutput reports whether stdout is a terminal. When true,
	// rows are rendered as a table by default.
	IsTerminalOutput func() bool
}

// NewRootCmd creates the top-level "dax" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "dax",
		Short:         "Run SQL against a database through typed connections and transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.IsInteractive != nil && app.IsInteractive() {
				return runShell(cmd, app)
			}
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.Config.Driver, "driver", app.Config.Driver, "database engine: sqlite, mysql, postgres or pgx")
	flags.StringVar(&app.Config.DSN, "dsn", app.Config.DSN, "data source name of the read-write target")
	flags.StringVar(&app.Config.ReadOnlyDSN, "readonly-dsn", app.Config.ReadOnlyDSN, "data source name of the read-only target (defaults to --dsn)")
	flags.BoolVar(&app.ReadOnly, "readonly", app.ReadOnly, "use a read-only connection")
	flags.DurationVar(&app.Config.Timeout, "timeout", app.Config.Timeout, "bound each command by this duration (0 disables)")

	root.AddCommand(
		newQueryCmd(app),
		newExecCmd(app),
		newScalarCmd(app),
		newTxCmd(app),
		newShellCmd(app),
	)

	return root
}

func (a *App) setup(stderr io.Writer) error {
	if a.Logger == nil {
		a.Logger = a.Config.Logger(stderr)
	}
	f, err := a.Config.Factory(a.Logger)
	if err != nil {
		return err
	}
	a.Factory = f
	return nil
}

// commandContext derives the context of one command, bounded by the
// configured timeout.
func (a *App) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.Config.Timeout > 0 {
		return context.WithTimeout(ctx, a.Config.Timeout)
	}
	return context.WithCancel(ctx)
}

// kindName is the name of the connection kind selected by --readonly.
func (a *App) kindName() string {
	if a.ReadOnly {
		return dataaccess.ReadOnly{}.Name()
	}
	return dataaccess.ReadWrite{}.Name()
}

// withQueryable opens a connection of the kind selected by --readonly, runs
// fn against it and closes it.
func (a *App) withQueryable(ctx context.Context, fn func(ctx context.Context, q dataaccess.Queryable) error) error {
	if a.ReadOnly {
		return withConnection(ctx, a.Factory, func(ctx context.Context, c *dataaccess.Connection[dataaccess.ReadOnly]) error {
			return fn(ctx, c)
		})
	}
	return withConnection(ctx, a.Factory, func(ctx context.Context, c *dataaccess.Connection[dataaccess.ReadWrite]) error {
		return fn(ctx, c)
	})
}

func withConnection[K dataaccess.Kind](ctx context.Context, f *dataaccess.Factory, fn func(ctx context.Context, c *dataaccess.Connection[K]) error) (err error) {
	conn, err := dataaccess.Open[K](f)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, conn.Close())
	}()
	return fn(ctx, conn)
}
